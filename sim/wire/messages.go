package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Vehicle is the minimal per-vehicle record exchanged between partitions
// when a vehicle crosses a boundary. It carries the type reference and the
// remaining route; physical parameters are looked up from the catalog on
// the receiving side.
type Vehicle struct {
	ID            uint64
	VehicleTypeID uint64
	Route         []uint64
	CurrRouteElem uint32
	Mode          uint64
	// ExitTime is the absolute arrival tick for teleported vehicles, so
	// delivery timing cannot shift the arrival. Zero for network vehicles.
	ExitTime uint32
}

// StorageCap reports the occupied storage of a boundary link back to the
// upstream partition, which mirrors it on its split out link.
type StorageCap struct {
	LinkID uint64
	Value  float32
}

// SyncMessage is the unit of cross-partition exchange for one tick.
// An empty SyncMessage still gets sent to every neighbor each tick; that
// is what makes the exchange double as the synchronization barrier.
type SyncMessage struct {
	Time        uint32
	FromProcess uint32
	ToProcess   uint32
	Vehicles    []Vehicle
	StorageCaps []StorageCap
}

func (v *Vehicle) Marshal() []byte {
	var b []byte
	b = appendUint64Field(b, 1, v.ID)
	b = appendUint64Field(b, 2, v.VehicleTypeID)
	b = appendPackedUint64(b, 3, v.Route)
	b = appendUint32Field(b, 4, v.CurrRouteElem)
	b = appendUint64Field(b, 5, v.Mode)
	b = appendUint32Field(b, 6, v.ExitTime)
	return b
}

func (v *Vehicle) Unmarshal(data []byte) error {
	*v = Vehicle{}
	return decodeLoop(data, func(num protowire.Number, typ protowire.Type, payload []byte) (int, error) {
		var err error
		var used int
		switch num {
		case 1:
			v.ID, used, err = consumeUint64(payload)
		case 2:
			v.VehicleTypeID, used, err = consumeUint64(payload)
		case 3:
			used = protowire.ConsumeFieldValue(3, typ, payload)
			if used < 0 {
				return 0, protowire.ParseError(used)
			}
			v.Route, err = consumePackedUint64(v.Route, payload, typ)
		case 4:
			v.CurrRouteElem, used, err = consumeUint32(payload)
		case 5:
			v.Mode, used, err = consumeUint64(payload)
		case 6:
			v.ExitTime, used, err = consumeUint32(payload)
		default:
			return -1, nil
		}
		return used, err
	})
}

func (s *StorageCap) Marshal() []byte {
	var b []byte
	b = appendUint64Field(b, 1, s.LinkID)
	b = appendFloatField(b, 2, s.Value)
	return b
}

func (s *StorageCap) Unmarshal(data []byte) error {
	*s = StorageCap{}
	return decodeLoop(data, func(num protowire.Number, typ protowire.Type, payload []byte) (int, error) {
		var err error
		var used int
		switch num {
		case 1:
			s.LinkID, used, err = consumeUint64(payload)
		case 2:
			s.Value, used, err = consumeFloat(payload)
		default:
			return -1, nil
		}
		return used, err
	})
}

func (m *SyncMessage) Marshal() []byte {
	var b []byte
	b = appendUint32Field(b, 1, m.Time)
	b = appendUint32Field(b, 2, m.FromProcess)
	b = appendUint32Field(b, 3, m.ToProcess)
	for i := range m.Vehicles {
		b = appendBytesField(b, 4, m.Vehicles[i].Marshal())
	}
	for i := range m.StorageCaps {
		b = appendBytesField(b, 5, m.StorageCaps[i].Marshal())
	}
	return b
}

func (m *SyncMessage) Unmarshal(data []byte) error {
	*m = SyncMessage{}
	return decodeLoop(data, func(num protowire.Number, typ protowire.Type, payload []byte) (int, error) {
		var err error
		var used int
		switch num {
		case 1:
			m.Time, used, err = consumeUint32(payload)
		case 2:
			m.FromProcess, used, err = consumeUint32(payload)
		case 3:
			m.ToProcess, used, err = consumeUint32(payload)
		case 4:
			var veh Vehicle
			used, err = consumeMessage(payload, &veh)
			if err == nil {
				m.Vehicles = append(m.Vehicles, veh)
			}
		case 5:
			var cap StorageCap
			used, err = consumeMessage(payload, &cap)
			if err == nil {
				m.StorageCaps = append(m.StorageCaps, cap)
			}
		default:
			return -1, nil
		}
		return used, err
	})
}
