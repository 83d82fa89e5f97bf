package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Network is the at-rest form of a road network: all nodes and links plus
// the effective cell size used to translate link length into storage cells.
type Network struct {
	Nodes             []Node
	Links             []Link
	EffectiveCellSize float32
}

// Node carries the partitioner-relevant node attributes. CmpWeight is the
// relative computational weight the partitioner balances; zero means
// "derive from topology".
type Node struct {
	ID        uint64
	X, Y      float64
	Partition uint32
	CmpWeight uint32
}

// Link describes one directed road segment. Capacity is vehicles per hour,
// Freespeed is m/s. Partition is the partition of the link's to-node.
type Link struct {
	ID        uint64
	From, To  uint64
	Length    float64
	Capacity  float32
	Freespeed float32
	Permlanes float32
	Modes     []uint64
	Partition uint32
}

func (n *Network) Marshal() []byte {
	var b []byte
	for i := range n.Nodes {
		b = appendBytesField(b, 1, n.Nodes[i].Marshal())
	}
	for i := range n.Links {
		b = appendBytesField(b, 2, n.Links[i].Marshal())
	}
	b = appendFloatField(b, 3, n.EffectiveCellSize)
	return b
}

func (n *Network) Unmarshal(data []byte) error {
	*n = Network{}
	return decodeLoop(data, func(num protowire.Number, typ protowire.Type, payload []byte) (int, error) {
		switch num {
		case 1:
			var node Node
			used, err := consumeMessage(payload, &node)
			if err == nil {
				n.Nodes = append(n.Nodes, node)
			}
			return used, err
		case 2:
			var link Link
			used, err := consumeMessage(payload, &link)
			if err == nil {
				n.Links = append(n.Links, link)
			}
			return used, err
		case 3:
			v, used, err := consumeFloat(payload)
			n.EffectiveCellSize = v
			return used, err
		}
		return -1, nil
	})
}

func (n *Node) Marshal() []byte {
	var b []byte
	b = appendUint64Field(b, 1, n.ID)
	b = appendDoubleField(b, 2, n.X)
	b = appendDoubleField(b, 3, n.Y)
	b = appendUint32Field(b, 4, n.Partition)
	b = appendUint32Field(b, 5, n.CmpWeight)
	return b
}

func (n *Node) Unmarshal(data []byte) error {
	*n = Node{}
	return decodeLoop(data, func(num protowire.Number, typ protowire.Type, payload []byte) (int, error) {
		var err error
		var used int
		switch num {
		case 1:
			n.ID, used, err = consumeUint64(payload)
		case 2:
			n.X, used, err = consumeDouble(payload)
		case 3:
			n.Y, used, err = consumeDouble(payload)
		case 4:
			n.Partition, used, err = consumeUint32(payload)
		case 5:
			n.CmpWeight, used, err = consumeUint32(payload)
		default:
			return -1, nil
		}
		return used, err
	})
}

func (l *Link) Marshal() []byte {
	var b []byte
	b = appendUint64Field(b, 1, l.ID)
	b = appendUint64Field(b, 2, l.From)
	b = appendUint64Field(b, 3, l.To)
	b = appendDoubleField(b, 4, l.Length)
	b = appendFloatField(b, 5, l.Capacity)
	b = appendFloatField(b, 6, l.Freespeed)
	b = appendFloatField(b, 7, l.Permlanes)
	b = appendPackedUint64(b, 8, l.Modes)
	b = appendUint32Field(b, 9, l.Partition)
	return b
}

func (l *Link) Unmarshal(data []byte) error {
	*l = Link{}
	return decodeLoop(data, func(num protowire.Number, typ protowire.Type, payload []byte) (int, error) {
		var err error
		var used int
		switch num {
		case 1:
			l.ID, used, err = consumeUint64(payload)
		case 2:
			l.From, used, err = consumeUint64(payload)
		case 3:
			l.To, used, err = consumeUint64(payload)
		case 4:
			l.Length, used, err = consumeDouble(payload)
		case 5:
			l.Capacity, used, err = consumeFloat(payload)
		case 6:
			l.Freespeed, used, err = consumeFloat(payload)
		case 7:
			l.Permlanes, used, err = consumeFloat(payload)
		case 8:
			// need the consumed size of the field value, so measure before parse
			used = protowire.ConsumeFieldValue(8, typ, payload)
			if used < 0 {
				return 0, protowire.ParseError(used)
			}
			l.Modes, err = consumePackedUint64(l.Modes, payload, typ)
		case 9:
			l.Partition, used, err = consumeUint32(payload)
		default:
			return -1, nil
		}
		return used, err
	})
}
