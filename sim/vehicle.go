package sim

import "github.com/parallel-qsim/qsim/sim/wire"

// Vehicle is the runtime view of a vehicle: the serializable record plus
// the resolved type. Only the record crosses partition boundaries; the
// receiving side re-attaches the type from its own garage.
type Vehicle struct {
	wire.Vehicle
	Type *VehicleType
}

// NewVehicle binds a wire record to its resolved type.
func NewVehicle(rec *wire.Vehicle, t *VehicleType) *Vehicle {
	return &Vehicle{Vehicle: *rec, Type: t}
}

// CurrLinkID returns the link the vehicle currently travels on, or false
// when the route is exhausted.
func (v *Vehicle) CurrLinkID() (uint64, bool) {
	if int(v.CurrRouteElem) >= len(v.Route) {
		return 0, false
	}
	return v.Route[v.CurrRouteElem], true
}

// PeekNextLinkID returns the link after the current one without advancing.
func (v *Vehicle) PeekNextLinkID() (uint64, bool) {
	next := int(v.CurrRouteElem) + 1
	if next >= len(v.Route) {
		return 0, false
	}
	return v.Route[next], true
}

// AdvanceRoute moves the route pointer to the next link.
func (v *Vehicle) AdvanceRoute() {
	v.CurrRouteElem++
}

// Record returns the serializable part for handing off to another
// partition. The receiver rebuilds the runtime vehicle via NewVehicle.
func (v *Vehicle) Record() *wire.Vehicle {
	rec := v.Vehicle
	return &rec
}

// occupancy is the storage footprint in cells: vehicle length times its
// passenger-car equivalent, scaled by the network's effective cell size.
func (v *Vehicle) occupancy(effectiveCellSize float64) float64 {
	return v.Type.Length * v.Type.Pce / effectiveCellSize
}

// maxSpeed caps the link free speed by the vehicle's own maximum. A type
// with no maximum never slows the link down.
func (v *Vehicle) maxSpeed(freespeed float64) float64 {
	if v.Type.MaxV > 0 && v.Type.MaxV < freespeed {
		return v.Type.MaxV
	}
	return freespeed
}
