package wire

import (
	"bufio"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// EventKind discriminates the simulation event stream records.
type EventKind uint32

const (
	EventDeparture   EventKind = 0
	EventLinkEnter   EventKind = 1
	EventLinkLeave   EventKind = 2
	EventArrival     EventKind = 3
	EventTravelled   EventKind = 4
	EventPassedAlong EventKind = 5 // vehicle handed to another partition
)

// Event is one record of the simulation event stream. Consumed by
// downstream analytics; the engine only ever writes them.
type Event struct {
	Time      uint32
	Kind      EventKind
	VehicleID uint64
	LinkID    uint64
}

func (e *Event) Marshal() []byte {
	var b []byte
	b = appendUint32Field(b, 1, e.Time)
	b = appendUint32Field(b, 2, uint32(e.Kind))
	b = appendUint64Field(b, 3, e.VehicleID)
	b = appendUint64Field(b, 4, e.LinkID)
	return b
}

func (e *Event) Unmarshal(data []byte) error {
	*e = Event{}
	return decodeLoop(data, func(num protowire.Number, typ protowire.Type, payload []byte) (int, error) {
		var err error
		var used int
		switch num {
		case 1:
			e.Time, used, err = consumeUint32(payload)
		case 2:
			var kind uint32
			kind, used, err = consumeUint32(payload)
			e.Kind = EventKind(kind)
		case 3:
			e.VehicleID, used, err = consumeUint64(payload)
		case 4:
			e.LinkID, used, err = consumeUint64(payload)
		default:
			return -1, nil
		}
		return used, err
	})
}

// EventWriter streams length-delimited events to w.
type EventWriter struct {
	w *bufio.Writer
}

func NewEventWriter(w io.Writer) *EventWriter {
	return &EventWriter{w: bufio.NewWriter(w)}
}

func (ew *EventWriter) Write(e *Event) error {
	msg := e.Marshal()
	buf := protowire.AppendVarint(nil, uint64(len(msg)))
	buf = append(buf, msg...)
	if _, err := ew.w.Write(buf); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

func (ew *EventWriter) Flush() error {
	return ew.w.Flush()
}

// ReadEvents decodes a full length-delimited event stream, as written by
// EventWriter. A truncated stream is an error, never silently shortened.
func ReadEvents(data []byte) ([]Event, error) {
	var events []Event
	for len(data) > 0 {
		size, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, fmt.Errorf("malformed event length: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if uint64(len(data)) < size {
			return nil, fmt.Errorf("truncated event record: want %d bytes, have %d", size, len(data))
		}
		var e Event
		if err := e.Unmarshal(data[:size]); err != nil {
			return nil, err
		}
		events = append(events, e)
		data = data[size:]
	}
	return events, nil
}
