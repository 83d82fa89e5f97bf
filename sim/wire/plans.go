package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Plans is the at-rest agent plan set. Route choice happens upstream; the
// simulation only consumes the precomputed link sequence per agent.
type Plans struct {
	Agents []AgentPlan
}

// AgentPlan is one agent's activation: depart at Departure in VehicleID
// and traverse Route (link ids, first to last). Distance is the total
// route length used for teleported travel times.
type AgentPlan struct {
	ID        uint64
	Departure uint32
	VehicleID uint64
	Route     []uint64
	Distance  float64
}

func (p *Plans) Marshal() []byte {
	var b []byte
	for i := range p.Agents {
		b = appendBytesField(b, 1, p.Agents[i].Marshal())
	}
	return b
}

func (p *Plans) Unmarshal(data []byte) error {
	*p = Plans{}
	return decodeLoop(data, func(num protowire.Number, typ protowire.Type, payload []byte) (int, error) {
		if num == 1 {
			var a AgentPlan
			used, err := consumeMessage(payload, &a)
			if err == nil {
				p.Agents = append(p.Agents, a)
			}
			return used, err
		}
		return -1, nil
	})
}

func (a *AgentPlan) Marshal() []byte {
	var b []byte
	b = appendUint64Field(b, 1, a.ID)
	b = appendUint32Field(b, 2, a.Departure)
	b = appendUint64Field(b, 3, a.VehicleID)
	b = appendPackedUint64(b, 4, a.Route)
	b = appendDoubleField(b, 5, a.Distance)
	return b
}

func (a *AgentPlan) Unmarshal(data []byte) error {
	*a = AgentPlan{}
	return decodeLoop(data, func(num protowire.Number, typ protowire.Type, payload []byte) (int, error) {
		var err error
		var used int
		switch num {
		case 1:
			a.ID, used, err = consumeUint64(payload)
		case 2:
			a.Departure, used, err = consumeUint32(payload)
		case 3:
			a.VehicleID, used, err = consumeUint64(payload)
		case 4:
			used = protowire.ConsumeFieldValue(4, typ, payload)
			if used < 0 {
				return 0, protowire.ParseError(used)
			}
			a.Route, err = consumePackedUint64(a.Route, payload, typ)
		case 5:
			a.Distance, used, err = consumeDouble(payload)
		default:
			return -1, nil
		}
		return used, err
	})
}
