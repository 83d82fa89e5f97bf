package network

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parallel-qsim/qsim/sim/wire"
)

func threeNodeNetwork(t *testing.T) *Network {
	t.Helper()
	n := New()
	require.NoError(t, n.AddNode(&Node{ID: 1, X: -100}))
	require.NoError(t, n.AddNode(&Node{ID: 2, X: 0}))
	require.NoError(t, n.AddNode(&Node{ID: 3, X: 100}))
	require.NoError(t, n.AddLink(&Link{ID: 10, From: 1, To: 2, Length: 100, Capacity: 3600, Freespeed: 10, Permlanes: 1}))
	require.NoError(t, n.AddLink(&Link{ID: 11, From: 2, To: 3, Length: 100, Capacity: 3600, Freespeed: 10, Permlanes: 1}))
	return n
}

func TestAddLinkWiresAdjacency(t *testing.T) {
	n := threeNodeNetwork(t)

	assert.Equal(t, []uint64{10}, n.Node(1).OutLinks)
	assert.Equal(t, []uint64{10}, n.Node(2).InLinks)
	assert.Equal(t, []uint64{11}, n.Node(2).OutLinks)
	assert.Equal(t, []uint64{11}, n.Node(3).InLinks)
}

func TestAddLinkRejectsMissingEndpoint(t *testing.T) {
	n := New()
	require.NoError(t, n.AddNode(&Node{ID: 1}))

	assert.Error(t, n.AddLink(&Link{ID: 10, From: 1, To: 99}))
	assert.Error(t, n.AddLink(&Link{ID: 11, From: 99, To: 1}))
}

func TestApplyPartitionDerivesLinkOwnership(t *testing.T) {
	n := threeNodeNetwork(t)

	require.NoError(t, n.ApplyPartition(map[uint64]uint32{1: 0, 2: 0, 3: 1}))

	// link ownership follows the downstream (to) node
	assert.Equal(t, uint32(0), n.Link(10).Partition)
	assert.Equal(t, uint32(1), n.Link(11).Partition)
	assert.Equal(t, uint32(1), n.OwnerOf(11))
	assert.Equal(t, uint32(2), n.NumPartitions())
	assert.NoError(t, n.Validate())
}

func TestApplyPartitionRejectsIncompleteAssignment(t *testing.T) {
	n := threeNodeNetwork(t)
	assert.Error(t, n.ApplyPartition(map[uint64]uint32{1: 0, 2: 0}))
}

func TestWireRoundTripThroughFile(t *testing.T) {
	n := threeNodeNetwork(t)
	require.NoError(t, n.ApplyPartition(map[uint64]uint32{1: 0, 2: 0, 3: 1}))

	path := filepath.Join(t.TempDir(), "network.pbf")
	require.NoError(t, n.WriteFile(path))

	loaded, err := ReadFile(path)
	require.NoError(t, err)

	require.Len(t, loaded.Links, 2)
	assert.Equal(t, n.Link(11).Partition, loaded.Link(11).Partition)
	assert.Equal(t, n.Link(10).Length, loaded.Link(10).Length)
	assert.Equal(t, float32(DefaultEffectiveCellSize), loaded.EffectiveCellSize)
	assert.Equal(t, n.Node(3).Partition, loaded.Node(3).Partition)
}

func TestFromWireRejectsInconsistentOwnership(t *testing.T) {
	w := &wire.Network{
		Nodes: []wire.Node{{ID: 1}, {ID: 2, Partition: 1}},
		Links: []wire.Link{{ID: 10, From: 1, To: 2, Partition: 0}},
	}
	// FromWire re-derives ownership from the to-node, so this loads fine
	// and the derived value wins over the stale wire field.
	n, err := FromWire(w)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n.Link(10).Partition)
}
