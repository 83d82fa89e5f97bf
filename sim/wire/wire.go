// Package wire defines the binary message contract shared by the at-rest
// input files (network, vehicle catalog, plans) and the live cross-partition
// exchange. Messages are encoded in protobuf wire format via
// google.golang.org/protobuf/encoding/protowire, so the files stay readable
// by any protobuf tooling that knows the schema.
package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every wire type in this package.
type Message interface {
	Marshal() []byte
	Unmarshal(data []byte) error
}

// field appends a tag for num with the given type.
func field(b []byte, num protowire.Number, typ protowire.Type) []byte {
	return protowire.AppendTag(b, num, typ)
}

func appendUint64Field(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = field(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendUint32Field(b []byte, num protowire.Number, v uint32) []byte {
	return appendUint64Field(b, num, uint64(v))
}

func appendFloatField(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = field(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendDoubleField(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = field(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = field(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// appendPackedUint64 encodes a repeated uint64 field in packed form.
// Empty slices are omitted entirely, matching proto3 presence rules.
func appendPackedUint64(b []byte, num protowire.Number, vs []uint64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, v)
	}
	return appendBytesField(b, num, packed)
}

// consumePackedUint64 accepts both packed and unpacked encodings, as
// conforming protobuf decoders must.
func consumePackedUint64(dst []uint64, data []byte, typ protowire.Type) ([]uint64, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		return append(dst, v), nil
	case protowire.BytesType:
		buf, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		for len(buf) > 0 {
			v, m := protowire.ConsumeVarint(buf)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			dst = append(dst, v)
			buf = buf[m:]
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("repeated uint64 field has wire type %v", typ)
	}
}

// decodeLoop walks all fields of a message and dispatches each one to apply.
// apply must consume the field payload (not the tag) and report how many
// bytes it used; returning -1 skips the field.
func decodeLoop(data []byte, apply func(num protowire.Number, typ protowire.Type, payload []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("malformed tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		used, err := apply(num, typ, data)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if used < 0 {
			// unknown field, skip it
			used = protowire.ConsumeFieldValue(num, typ, data)
			if used < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(used))
			}
		}
		data = data[used:]
	}
	return nil
}

func consumeUint64(data []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeUint32(data []byte) (uint32, int, error) {
	v, n, err := consumeUint64(data)
	return uint32(v), n, err
}

func consumeFloat(data []byte) (float32, int, error) {
	v, n := protowire.ConsumeFixed32(data)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return math.Float32frombits(v), n, nil
}

func consumeDouble(data []byte) (float64, int, error) {
	v, n := protowire.ConsumeFixed64(data)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return math.Float64frombits(v), n, nil
}

// consumeMessage decodes an embedded message field into msg.
func consumeMessage(data []byte, msg Message) (int, error) {
	buf, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if err := msg.Unmarshal(buf); err != nil {
		return 0, err
	}
	return n, nil
}
