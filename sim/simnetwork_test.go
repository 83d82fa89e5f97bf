package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parallel-qsim/qsim/sim/network"
	"github.com/parallel-qsim/qsim/sim/wire"
)

// chainNetwork builds 1 --10--> 2 --20--> 3 with the given node partitions.
func chainNetwork(t *testing.T, parts map[uint64]uint32) *network.Network {
	t.Helper()
	n := network.New()
	for _, id := range []uint64{1, 2, 3} {
		require.NoError(t, n.AddNode(&network.Node{ID: id, Partition: parts[id]}))
	}
	require.NoError(t, n.AddLink(&network.Link{ID: 10, From: 1, To: 2, Length: 100, Capacity: 3600, Freespeed: 10, Permlanes: 1}))
	require.NoError(t, n.AddLink(&network.Link{ID: 20, From: 2, To: 3, Length: 100, Capacity: 3600, Freespeed: 10, Permlanes: 1}))
	return n
}

func TestSimNetworkClassifiesBoundaryLinks(t *testing.T) {
	global := chainNetwork(t, map[uint64]uint32{1: 0, 2: 0, 3: 1})

	rank0 := NewSimNetwork(global, 0, 1.0, NewRankRNG(42, 0))
	require.NotNil(t, rank0.Link(10))
	assert.Equal(t, linkLocal, rank0.Link(10).kind)
	require.NotNil(t, rank0.Link(20))
	assert.Equal(t, linkSplitOut, rank0.Link(20).kind)
	assert.Equal(t, []uint32{1}, rank0.Neighbors())
	assert.True(t, rank0.Owns(10))
	assert.False(t, rank0.Owns(20))

	rank1 := NewSimNetwork(global, 1, 1.0, NewRankRNG(42, 1))
	require.NotNil(t, rank1.Link(20))
	assert.Equal(t, linkSplitIn, rank1.Link(20).kind)
	assert.Equal(t, uint32(0), rank1.Link(20).fromPart)
	assert.Equal(t, []uint32{0}, rank1.Neighbors())
	assert.Nil(t, rank1.Link(10))
}

func TestMoveNodesAdvancesVehicleAlongRoute(t *testing.T) {
	global := chainNetwork(t, map[uint64]uint32{})
	sn := NewSimNetwork(global, 0, 1.0, NewRankRNG(42, 0))
	collector := NewEventsCollector()
	events := NewEventsPublisher(collector)

	veh := testVehicle(1, carType(), 10, 20)
	require.NoError(t, sn.PushEnRoute(veh, 0))

	assert.Empty(t, sn.MoveNodes(events, 9))

	exited := sn.MoveNodes(events, 10)
	assert.Empty(t, exited)
	require.Len(t, collector.Events, 2)
	assert.Equal(t, wire.Event{Time: 10, Kind: wire.EventLinkLeave, VehicleID: 1, LinkID: 10}, collector.Events[0])
	assert.Equal(t, wire.Event{Time: 10, Kind: wire.EventLinkEnter, VehicleID: 1, LinkID: 20}, collector.Events[1])

	exited = sn.MoveNodes(events, 20)
	require.Len(t, exited, 1)
	assert.Same(t, veh, exited[0])
	assert.Equal(t, 0, sn.VehicleCount())
}

func TestMoveNodesSpillBackHoldsVehicleUpstream(t *testing.T) {
	global := chainNetwork(t, map[uint64]uint32{})
	sn := NewSimNetwork(global, 0, 1.0, NewRankRNG(42, 0))
	events := NewEventsPublisher()

	// jam link 20 with 13 parked cars
	for i := uint64(100); i < 113; i++ {
		require.NoError(t, sn.PushEnRoute(testVehicle(i, carType(), 20), 0))
	}
	blocked := testVehicle(1, carType(), 10, 20)
	require.NoError(t, sn.PushEnRoute(blocked, 0))

	sn.MoveNodes(events, 10)
	got, ok := sn.Link(10).Offers(11)
	require.True(t, ok, "vehicle must still wait on its upstream link")
	assert.Same(t, blocked, got)
}

func TestMoveLinksReportsSplitInStorage(t *testing.T) {
	global := chainNetwork(t, map[uint64]uint32{1: 0, 2: 0, 3: 1})
	rank1 := NewSimNetwork(global, 1, 1.0, NewRankRNG(42, 1))

	veh := testVehicle(1, carType(), 20)
	require.NoError(t, rank1.PushEnRoute(veh, 0))

	out, reports := rank1.MoveLinks(0)
	assert.Empty(t, out)
	require.Len(t, reports, 1)
	assert.Equal(t, uint64(20), reports[0].LinkID)
	assert.Equal(t, uint32(0), reports[0].FromPart)
	assert.InDelta(t, 1.0, reports[0].Used, 1e-9)
}

func TestMoveLinksDrainsSplitOutBuffers(t *testing.T) {
	global := chainNetwork(t, map[uint64]uint32{1: 0, 2: 0, 3: 1})
	rank0 := NewSimNetwork(global, 0, 1.0, NewRankRNG(42, 0))

	veh := testVehicle(1, carType(), 10, 20)
	veh.AdvanceRoute()
	require.NoError(t, rank0.PushEnRoute(veh, 5))

	out, reports := rank0.MoveLinks(5)
	assert.Empty(t, reports)
	require.Len(t, out, 1)
	assert.Same(t, veh, out[0])
	assert.Equal(t, 0, rank0.VehicleCount())
}

func TestApplyStorageCapsUpdatesMirror(t *testing.T) {
	global := chainNetwork(t, map[uint64]uint32{1: 0, 2: 0, 3: 1})
	rank0 := NewSimNetwork(global, 0, 1.0, NewRankRNG(42, 0))

	rank0.ApplyStorageCaps([]wire.StorageCap{{LinkID: 20, Value: 13}})
	assert.False(t, rank0.Link(20).HasSpaceFor(1))
	rank0.ApplyStorageCaps([]wire.StorageCap{{LinkID: 20, Value: 0}})
	assert.True(t, rank0.Link(20).HasSpaceFor(1))
}
