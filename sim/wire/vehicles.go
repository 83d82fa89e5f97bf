package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// LevelOfDetail selects how a vehicle type is moved through the network.
type LevelOfDetail uint32

const (
	// LodNetwork vehicles are moved link by link through the queue model.
	LodNetwork LevelOfDetail = 0
	// LodTeleported vehicles jump to their destination after a travel time
	// computed from route distance, never occupying link storage.
	LodTeleported LevelOfDetail = 1
)

// VehiclesContainer is the at-rest vehicle catalog: the type definitions
// plus the vehicle-instance to type mapping.
type VehiclesContainer struct {
	VehicleTypes []VehicleType
	Vehicles     []VehicleToType
}

// VehicleType holds the physical parameters the queue model needs. Fef is
// carried through for downstream emission analysis but does not influence
// flow dynamics.
type VehicleType struct {
	ID      uint64
	Length  float32
	Width   float32
	MaxV    float32
	Pce     float32
	Fef     float32
	NetMode uint64
	Lod     LevelOfDetail
}

// VehicleToType maps one vehicle instance to its type.
type VehicleToType struct {
	ID            uint64
	VehicleTypeID uint64
}

func (c *VehiclesContainer) Marshal() []byte {
	var b []byte
	for i := range c.VehicleTypes {
		b = appendBytesField(b, 1, c.VehicleTypes[i].Marshal())
	}
	for i := range c.Vehicles {
		b = appendBytesField(b, 2, c.Vehicles[i].Marshal())
	}
	return b
}

func (c *VehiclesContainer) Unmarshal(data []byte) error {
	*c = VehiclesContainer{}
	return decodeLoop(data, func(num protowire.Number, typ protowire.Type, payload []byte) (int, error) {
		switch num {
		case 1:
			var vt VehicleType
			used, err := consumeMessage(payload, &vt)
			if err == nil {
				c.VehicleTypes = append(c.VehicleTypes, vt)
			}
			return used, err
		case 2:
			var v2t VehicleToType
			used, err := consumeMessage(payload, &v2t)
			if err == nil {
				c.Vehicles = append(c.Vehicles, v2t)
			}
			return used, err
		}
		return -1, nil
	})
}

func (t *VehicleType) Marshal() []byte {
	var b []byte
	b = appendUint64Field(b, 1, t.ID)
	b = appendFloatField(b, 2, t.Length)
	b = appendFloatField(b, 3, t.Width)
	b = appendFloatField(b, 4, t.MaxV)
	b = appendFloatField(b, 5, t.Pce)
	b = appendFloatField(b, 6, t.Fef)
	b = appendUint64Field(b, 7, t.NetMode)
	b = appendUint32Field(b, 8, uint32(t.Lod))
	return b
}

func (t *VehicleType) Unmarshal(data []byte) error {
	*t = VehicleType{}
	return decodeLoop(data, func(num protowire.Number, typ protowire.Type, payload []byte) (int, error) {
		var err error
		var used int
		switch num {
		case 1:
			t.ID, used, err = consumeUint64(payload)
		case 2:
			t.Length, used, err = consumeFloat(payload)
		case 3:
			t.Width, used, err = consumeFloat(payload)
		case 4:
			t.MaxV, used, err = consumeFloat(payload)
		case 5:
			t.Pce, used, err = consumeFloat(payload)
		case 6:
			t.Fef, used, err = consumeFloat(payload)
		case 7:
			t.NetMode, used, err = consumeUint64(payload)
		case 8:
			var lod uint32
			lod, used, err = consumeUint32(payload)
			t.Lod = LevelOfDetail(lod)
		default:
			return -1, nil
		}
		return used, err
	})
}

func (m *VehicleToType) Marshal() []byte {
	var b []byte
	b = appendUint64Field(b, 1, m.ID)
	b = appendUint64Field(b, 2, m.VehicleTypeID)
	return b
}

func (m *VehicleToType) Unmarshal(data []byte) error {
	*m = VehicleToType{}
	return decodeLoop(data, func(num protowire.Number, typ protowire.Type, payload []byte) (int, error) {
		var err error
		var used int
		switch num {
		case 1:
			m.ID, used, err = consumeUint64(payload)
		case 2:
			m.VehicleTypeID, used, err = consumeUint64(payload)
		default:
			return -1, nil
		}
		return used, err
	})
}
