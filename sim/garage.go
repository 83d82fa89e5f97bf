package sim

import (
	"fmt"
	"os"
	"sort"

	"github.com/parallel-qsim/qsim/sim/wire"
)

// VehicleType is the immutable catalog entry shared by all vehicles of one
// type. It never crosses partition boundaries; receivers resolve it from
// their own garage by type id.
type VehicleType struct {
	ID            uint64
	Length        float64
	Width         float64
	MaxV          float64
	Pce           float64
	Fef           float64
	NetMode       uint64
	LevelOfDetail wire.LevelOfDetail
}

// Garage holds the vehicle type catalog and the vehicle-to-type mapping.
// Every partition loads the identical garage at startup.
type Garage struct {
	types        map[uint64]*VehicleType
	vehicleTypes map[uint64]uint64
}

func NewGarage() *Garage {
	return &Garage{
		types:        make(map[uint64]*VehicleType),
		vehicleTypes: make(map[uint64]uint64),
	}
}

// GarageFromWire builds a garage from its serialized container form.
func GarageFromWire(c *wire.VehiclesContainer) (*Garage, error) {
	g := NewGarage()
	for i := range c.VehicleTypes {
		t := &c.VehicleTypes[i]
		if _, ok := g.types[t.ID]; ok {
			return nil, fmt.Errorf("garage: duplicate vehicle type %d", t.ID)
		}
		g.types[t.ID] = &VehicleType{
			ID:            t.ID,
			Length:        float64(t.Length),
			Width:         float64(t.Width),
			MaxV:          float64(t.MaxV),
			Pce:           float64(t.Pce),
			Fef:           float64(t.Fef),
			NetMode:       t.NetMode,
			LevelOfDetail: t.Lod,
		}
	}
	for i := range c.Vehicles {
		vt := &c.Vehicles[i]
		if _, ok := g.types[vt.VehicleTypeID]; !ok {
			return nil, fmt.Errorf("garage: vehicle %d references unknown type %d", vt.ID, vt.VehicleTypeID)
		}
		g.vehicleTypes[vt.ID] = vt.VehicleTypeID
	}
	return g, nil
}

// ReadGarage loads the serialized garage from path.
func ReadGarage(path string) (*Garage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("garage: read %s: %w", path, err)
	}
	var c wire.VehiclesContainer
	if err := c.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("garage: decode %s: %w", path, err)
	}
	return GarageFromWire(&c)
}

// AddType registers a vehicle type.
func (g *Garage) AddType(t *VehicleType) {
	g.types[t.ID] = t
}

// AddVehicle assigns a concrete vehicle to a registered type.
func (g *Garage) AddVehicle(vehicleID, typeID uint64) error {
	if _, ok := g.types[typeID]; !ok {
		return fmt.Errorf("garage: unknown vehicle type %d", typeID)
	}
	g.vehicleTypes[vehicleID] = typeID
	return nil
}

// Type returns the catalog entry for a type id.
func (g *Garage) Type(typeID uint64) (*VehicleType, error) {
	t, ok := g.types[typeID]
	if !ok {
		return nil, fmt.Errorf("garage: unknown vehicle type %d", typeID)
	}
	return t, nil
}

// TypeOf resolves the type of a concrete vehicle.
func (g *Garage) TypeOf(vehicleID uint64) (*VehicleType, error) {
	typeID, ok := g.vehicleTypes[vehicleID]
	if !ok {
		return nil, fmt.Errorf("garage: unknown vehicle %d", vehicleID)
	}
	return g.Type(typeID)
}

// ToWire serializes the garage back to its container form.
func (g *Garage) ToWire() *wire.VehiclesContainer {
	c := &wire.VehiclesContainer{}
	for _, t := range g.types {
		c.VehicleTypes = append(c.VehicleTypes, wire.VehicleType{
			ID:      t.ID,
			Length:  float32(t.Length),
			Width:   float32(t.Width),
			MaxV:    float32(t.MaxV),
			Pce:     float32(t.Pce),
			Fef:     float32(t.Fef),
			NetMode: t.NetMode,
			Lod:     t.LevelOfDetail,
		})
	}
	for vehID, typeID := range g.vehicleTypes {
		c.Vehicles = append(c.Vehicles, wire.VehicleToType{ID: vehID, VehicleTypeID: typeID})
	}
	sort.Slice(c.VehicleTypes, func(i, j int) bool { return c.VehicleTypes[i].ID < c.VehicleTypes[j].ID })
	sort.Slice(c.Vehicles, func(i, j int) bool { return c.Vehicles[i].ID < c.Vehicles[j].ID })
	return c
}
