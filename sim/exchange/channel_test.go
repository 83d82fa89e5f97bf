package exchange

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parallel-qsim/qsim/sim/wire"
)

func TestChannelFabricExchangesBetweenRanks(t *testing.T) {
	fabric := NewChannelFabric(2)
	var wg sync.WaitGroup
	results := make([][]*wire.SyncMessage, 2)
	errs := make([]error, 2)

	run := func(rank uint32) {
		defer wg.Done()
		comm := fabric.Communicator(rank)
		peer := 1 - rank
		out := map[uint32]*wire.SyncMessage{
			peer: {
				Time: 0, FromProcess: rank, ToProcess: peer,
				Vehicles: []wire.Vehicle{{ID: uint64(rank) + 100, Route: []uint64{1, 2}, CurrRouteElem: 1}},
			},
		}
		expected := map[uint32]bool{peer: true}
		errs[rank] = comm.SendReceiveVehicles(out, expected, 0, func(msg *wire.SyncMessage) {
			results[rank] = append(results[rank], msg)
		})
	}
	wg.Add(2)
	go run(0)
	go run(1)
	wg.Wait()

	for rank := uint32(0); rank < 2; rank++ {
		require.NoError(t, errs[rank])
		require.Len(t, results[rank], 1)
		msg := results[rank][0]
		assert.Equal(t, 1-rank, msg.FromProcess)
		require.Len(t, msg.Vehicles, 1)
		// the message was round-tripped through the wire encoding
		assert.Equal(t, uint64(1-rank)+100, msg.Vehicles[0].ID)
		assert.Equal(t, []uint64{1, 2}, msg.Vehicles[0].Route)
		assert.Equal(t, uint32(1), msg.Vehicles[0].CurrRouteElem)
	}
}

func TestChannelFabricDeliversEarlyMessagesWithoutBlocking(t *testing.T) {
	fabric := NewChannelFabric(2)
	comm0 := fabric.Communicator(0)
	comm1 := fabric.Communicator(1)

	// rank 1 sends ticks 0 and 1 before rank 0 receives anything
	for tick := uint32(0); tick < 2; tick++ {
		err := comm1.SendReceiveVehicles(map[uint32]*wire.SyncMessage{
			0: {Time: tick, FromProcess: 1, ToProcess: 0},
		}, map[uint32]bool{}, tick, func(*wire.SyncMessage) {})
		require.NoError(t, err)
	}

	var got []*wire.SyncMessage
	expected := map[uint32]bool{1: true}
	err := comm0.SendReceiveVehicles(nil, expected, 0, func(msg *wire.SyncMessage) {
		got = append(got, msg)
	})
	require.NoError(t, err)
	assert.Empty(t, expected)
	require.Len(t, got, 2)
	assert.Equal(t, uint32(0), got[0].Time)
	assert.Equal(t, uint32(1), got[1].Time)
}

func TestChannelFabricGlobalSum(t *testing.T) {
	fabric := NewChannelFabric(3)
	var wg sync.WaitGroup
	sums := make([]uint64, 3)
	for rank := uint32(0); rank < 3; rank++ {
		wg.Add(1)
		go func(rank uint32) {
			defer wg.Done()
			sum, err := fabric.Communicator(rank).GlobalSum(0, uint64(rank)+1)
			require.NoError(t, err)
			sums[rank] = sum
		}(rank)
	}
	wg.Wait()
	for rank := 0; rank < 3; rank++ {
		assert.Equal(t, uint64(6), sums[rank])
	}
}

func TestDummyCommunicatorSingleRank(t *testing.T) {
	comm := DummyCommunicator{}
	assert.Equal(t, uint32(0), comm.Rank())
	assert.Equal(t, uint32(1), comm.Size())
	sum, err := comm.GlobalSum(0, 17)
	require.NoError(t, err)
	assert.Equal(t, uint64(17), sum)
}
