package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parallel-qsim/qsim/sim/network"
)

func carType() *VehicleType {
	return &VehicleType{ID: 1, Length: 7.5, Width: 1.8, Pce: 1, Fef: 1, NetMode: 1}
}

func busType() *VehicleType {
	return &VehicleType{ID: 2, Length: 15, Width: 2.5, MaxV: 5, Pce: 2, Fef: 1, NetMode: 1}
}

func testVehicle(id uint64, t *VehicleType, route ...uint64) *Vehicle {
	v := &Vehicle{Type: t}
	v.ID = id
	v.VehicleTypeID = t.ID
	v.Route = route
	return v
}

func testLink(t *testing.T, capacity float32, part, fromPart uint32) *SimLink {
	t.Helper()
	l := &network.Link{
		ID: 1, From: 1, To: 2,
		Length: 100, Capacity: capacity, Freespeed: 10, Permlanes: 1,
		Partition: part,
	}
	return newSimLink(l, 0, fromPart, 1.0, network.DefaultEffectiveCellSize)
}

func TestLocalLinkFreeFlowExit(t *testing.T) {
	link := testLink(t, 3600, 0, 0)
	require.Equal(t, linkLocal, link.kind)

	veh := testVehicle(1, carType(), 1)
	link.Push(veh, 0)

	// 100m at 10m/s: not before tick 10
	_, ok := link.Offers(9)
	assert.False(t, ok)

	got, ok := link.Offers(10)
	require.True(t, ok)
	assert.Same(t, veh, got)
	assert.Same(t, veh, link.Pop())
	assert.Equal(t, 0, link.QueueLen())
}

func TestLocalLinkVehicleMaxSpeedSlowsTraversal(t *testing.T) {
	link := testLink(t, 3600, 0, 0)
	link.Push(testVehicle(1, busType(), 1), 0)

	// the bus is capped at 5 m/s, so 20 ticks instead of 10
	_, ok := link.Offers(19)
	assert.False(t, ok)
	_, ok = link.Offers(20)
	assert.True(t, ok)
}

func TestLocalLinkFlowCapGatesSuccessiveExits(t *testing.T) {
	link := testLink(t, 3600, 0, 0)
	link.Push(testVehicle(1, carType(), 1), 0)
	link.Push(testVehicle(2, carType(), 1), 0)

	_, ok := link.Offers(10)
	require.True(t, ok)
	link.Pop()

	// 3600 veh/h is one per tick: the second vehicle waits a tick
	_, ok = link.Offers(10)
	assert.False(t, ok)
	_, ok = link.Offers(11)
	assert.True(t, ok)
}

func TestLocalLinkFIFOUnderMixedSpeeds(t *testing.T) {
	link := testLink(t, 3600, 0, 0)
	bus := testVehicle(1, busType(), 1)
	car := testVehicle(2, carType(), 1)
	link.Push(bus, 0)
	link.Push(car, 0)

	// the car would be ready at tick 10 but may not overtake the bus
	_, ok := link.Offers(10)
	assert.False(t, ok)
	got, ok := link.Offers(20)
	require.True(t, ok)
	assert.Same(t, bus, got)
}

func TestStorageCapTwoPhaseRelease(t *testing.T) {
	// 100m link holds 13 cars of 7.5m
	link := testLink(t, 3600, 0, 0)
	for i := uint64(0); i < 13; i++ {
		require.True(t, link.HasSpaceFor(1))
		link.Push(testVehicle(i, carType(), 1), 0)
	}
	assert.False(t, link.HasSpaceFor(1))

	_, ok := link.Offers(10)
	require.True(t, ok)
	link.Pop()

	// freed cells become visible only after the link phase ran
	assert.False(t, link.HasSpaceFor(1))
	link.storage.applyReleased()
	assert.True(t, link.HasSpaceFor(1))
}

func TestSplitInLinkKind(t *testing.T) {
	link := testLink(t, 3600, 0, 3)
	assert.Equal(t, linkSplitIn, link.kind)
	assert.Equal(t, uint32(3), link.fromPart)
	assert.True(t, link.IsLocal())
}

func TestSplitOutLinkBuffersAndMirrorsStorage(t *testing.T) {
	link := testLink(t, 3600, 2, 0)
	require.Equal(t, linkSplitOut, link.kind)
	assert.False(t, link.IsLocal())

	veh := testVehicle(1, carType(), 1)
	require.True(t, link.HasSpaceFor(1))
	link.Push(veh, 0)

	// local pushes charge the mirror until the remote reports again
	assert.InDelta(t, 1.0, link.usedMirror, 1e-9)

	out := link.TakeVehicles()
	require.Len(t, out, 1)
	assert.Same(t, veh, out[0])
	assert.Nil(t, link.TakeVehicles())

	link.SetUsedMirror(13.0)
	assert.False(t, link.HasSpaceFor(1))
	link.SetUsedMirror(0)
	assert.True(t, link.HasSpaceFor(1))
}

func TestSplitOutMirrorKeepsHandedOverBatchCharged(t *testing.T) {
	link := testLink(t, 3600, 2, 0)
	require.Equal(t, linkSplitOut, link.kind)

	link.Push(testVehicle(1, carType(), 1), 0)
	link.Push(testVehicle(2, carType(), 1), 0)
	require.Len(t, link.TakeVehicles(), 2)

	// the owner builds its report before it integrates this batch, so
	// applying the report must not forget the two cells under way
	link.SetUsedMirror(5)
	assert.InDelta(t, 7.0, link.usedMirror, 1e-9)

	// next tick the batch shows up in the report itself
	assert.Nil(t, link.TakeVehicles())
	link.SetUsedMirror(7)
	assert.InDelta(t, 7.0, link.usedMirror, 1e-9)
}
