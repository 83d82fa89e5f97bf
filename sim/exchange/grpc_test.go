package exchange

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parallel-qsim/qsim/sim/wire"
)

func freeAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := range addrs {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = lis.Addr().String()
		require.NoError(t, lis.Close())
	}
	return addrs
}

func TestGRPCCommunicatorExchange(t *testing.T) {
	addrs := freeAddrs(t, 2)
	comms := make([]*GRPCCommunicator, 2)
	for rank := range comms {
		comm, err := NewGRPCCommunicator(uint32(rank), addrs)
		require.NoError(t, err)
		comms[rank] = comm
		defer comm.Close()
	}

	var wg sync.WaitGroup
	results := make([][]*wire.SyncMessage, 2)
	errs := make([]error, 2)
	run := func(rank uint32) {
		defer wg.Done()
		peer := 1 - rank
		out := map[uint32]*wire.SyncMessage{
			peer: {
				Time: 3, FromProcess: rank, ToProcess: peer,
				Vehicles:    []wire.Vehicle{{ID: uint64(rank) + 1, Route: []uint64{7}}},
				StorageCaps: []wire.StorageCap{{LinkID: 7, Value: 2.5}},
			},
		}
		errs[rank] = comms[rank].SendReceiveVehicles(out, map[uint32]bool{peer: true}, 3, func(msg *wire.SyncMessage) {
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
		assert.Equal(t, uint32(3), msg.Time)
		assert.Equal(t, 1-rank, msg.FromProcess)
		require.Len(t, msg.Vehicles, 1)
		assert.Equal(t, uint64(1-rank)+1, msg.Vehicles[0].ID)
		require.Len(t, msg.StorageCaps, 1)
		assert.InDelta(t, 2.5, float64(msg.StorageCaps[0].Value), 1e-6)
	}
}

func TestGRPCGlobalSum(t *testing.T) {
	addrs := freeAddrs(t, 3)
	comms := make([]*GRPCCommunicator, 3)
	for rank := range comms {
		comm, err := NewGRPCCommunicator(uint32(rank), addrs)
		require.NoError(t, err)
		comms[rank] = comm
		defer comm.Close()
	}

	var wg sync.WaitGroup
	sums := make([]uint64, 3)
	for rank := uint32(0); rank < 3; rank++ {
		wg.Add(1)
		go func(rank uint32) {
			defer wg.Done()
			sum, err := comms[rank].GlobalSum(0, uint64(rank)*10)
			require.NoError(t, err)
			sums[rank] = sum
		}(rank)
	}
	wg.Wait()
	for rank := 0; rank < 3; rank++ {
		assert.Equal(t, uint64(30), sums[rank])
	}
}

func TestReduceMessagesRoundTrip(t *testing.T) {
	req := &reduceRequest{Time: 12, From: 3, Value: 99}
	var gotReq reduceRequest
	require.NoError(t, gotReq.Unmarshal(req.Marshal()))
	assert.Equal(t, *req, gotReq)

	reply := &reduceReply{Value: 1234}
	var gotReply reduceReply
	require.NoError(t, gotReply.Unmarshal(reply.Marshal()))
	assert.Equal(t, *reply, gotReply)
}

func TestExchangeCodecRejectsForeignTypes(t *testing.T) {
	_, err := exchangeCodec{}.Marshal(struct{}{})
	assert.Error(t, err)
	assert.Error(t, exchangeCodec{}.Unmarshal(nil, struct{}{}))
}
