// Package exchange moves vehicles and storage reports between partitions.
// The broker implements the per-tick protocol; communicators carry the
// serialized messages over an in-process channel fabric or gRPC.
package exchange

import (
	"sync"

	"github.com/parallel-qsim/qsim/sim/wire"
)

// Communicator is the transport beneath the broker. Implementations must
// deliver every message exactly once and must not reorder messages from
// the same sender.
type Communicator interface {
	// Rank identifies this process, Size the total process count.
	Rank() uint32
	Size() uint32
	// SendReceiveVehicles sends every prepared message and then blocks
	// until one message timestamped now has arrived from each expected
	// neighbor. Every received message, including early ones from future
	// ticks, is passed to onMsg.
	SendReceiveVehicles(out map[uint32]*wire.SyncMessage, expected map[uint32]bool, now uint32, onMsg func(*wire.SyncMessage)) error
	// GlobalSum adds value across all processes. It doubles as a barrier:
	// no process sees the result before every process has contributed.
	GlobalSum(now uint32, value uint64) (uint64, error)
}

// DummyCommunicator backs single-process runs. Nothing ever crosses a
// boundary, so sending is a no-op and the global sum is the local value.
type DummyCommunicator struct{}

func (DummyCommunicator) Rank() uint32 { return 0 }
func (DummyCommunicator) Size() uint32 { return 1 }

func (DummyCommunicator) SendReceiveVehicles(out map[uint32]*wire.SyncMessage, expected map[uint32]bool, now uint32, onMsg func(*wire.SyncMessage)) error {
	return nil
}

func (DummyCommunicator) GlobalSum(now uint32, value uint64) (uint64, error) {
	return value, nil
}

// reducer is a reusable all-reduce barrier: every participant contributes
// once per generation and blocks until the generation's sum is complete.
type reducer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	size   int
	count  int
	sum    uint64
	result uint64
	gen    uint64
}

func newReducer(size int) *reducer {
	r := &reducer{size: size}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *reducer) reduce(value uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	gen := r.gen
	r.sum += value
	r.count++
	if r.count == r.size {
		r.result = r.sum
		r.sum = 0
		r.count = 0
		r.gen++
		r.cond.Broadcast()
		return r.result
	}
	for gen == r.gen {
		r.cond.Wait()
	}
	return r.result
}
