package exchange

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/parallel-qsim/qsim/sim/wire"
)

// Broker runs one partition's side of the per-tick exchange protocol. Each
// tick it sends exactly one SyncMessage, possibly empty, to every neighbor
// and blocks until every neighbor's message for the tick has arrived; the
// exchange is the synchronization barrier of the whole simulation.
// Messages timestamped in the future are cached and replayed when their
// tick comes up.
type Broker struct {
	comm      Communicator
	neighbors []uint32
	linkOwner map[uint64]uint32
	out       map[uint32]*wire.SyncMessage
	cache     messageHeap
	// vehicles handed to the transport during the last SendReceive; a
	// destination outside the neighbor set may not pick them up until
	// its next tick, so they count as pending at the sender meanwhile
	sentVehicles uint64
}

// NewBroker wires a broker to its transport. neighbors lists the ranks
// this partition exchanges with; linkOwner resolves destination ranks for
// en-route vehicles.
func NewBroker(comm Communicator, neighbors []uint32, linkOwner map[uint64]uint32) *Broker {
	return &Broker{
		comm:      comm,
		neighbors: append([]uint32(nil), neighbors...),
		linkOwner: linkOwner,
		out:       make(map[uint32]*wire.SyncMessage),
	}
}

func (b *Broker) Rank() uint32 { return b.comm.Rank() }
func (b *Broker) Size() uint32 { return b.comm.Size() }

// OwnerOf resolves the rank that owns link id.
func (b *Broker) OwnerOf(linkID uint64) (uint32, error) {
	rank, ok := b.linkOwner[linkID]
	if !ok {
		return 0, fmt.Errorf("broker: no owner for link %d", linkID)
	}
	return rank, nil
}

func (b *Broker) outboxFor(dest uint32, now uint32) *wire.SyncMessage {
	msg, ok := b.out[dest]
	if !ok {
		msg = &wire.SyncMessage{Time: now, FromProcess: b.comm.Rank(), ToProcess: dest}
		b.out[dest] = msg
	}
	return msg
}

// AddVehicle queues a vehicle for the rank owning its current route link.
func (b *Broker) AddVehicle(v *wire.Vehicle, now uint32) error {
	if int(v.CurrRouteElem) >= len(v.Route) {
		return fmt.Errorf("broker: vehicle %d has no current route link", v.ID)
	}
	dest, err := b.OwnerOf(v.Route[v.CurrRouteElem])
	if err != nil {
		return err
	}
	msg := b.outboxFor(dest, now)
	msg.Vehicles = append(msg.Vehicles, *v)
	return nil
}

// AddTeleported queues a teleported vehicle directly for dest, bypassing
// link ownership; its ExitTime already fixes the arrival tick.
func (b *Broker) AddTeleported(v *wire.Vehicle, dest uint32, now uint32) {
	msg := b.outboxFor(dest, now)
	msg.Vehicles = append(msg.Vehicles, *v)
}

// AddStorageCap queues a boundary-link occupancy report for dest.
func (b *Broker) AddStorageCap(dest uint32, cap wire.StorageCap, now uint32) {
	msg := b.outboxFor(dest, now)
	msg.StorageCaps = append(msg.StorageCaps, cap)
}

// SendReceive runs the exchange for tick now and returns every message for
// this tick, sorted by sending rank so processing order is deterministic.
func (b *Broker) SendReceive(now uint32) ([]*wire.SyncMessage, error) {
	expected := make(map[uint32]bool, len(b.neighbors))
	for _, n := range b.neighbors {
		expected[n] = true
		// a neighbor always gets a message, even an empty one
		b.outboxFor(n, now)
	}

	var received []*wire.SyncMessage
	for len(b.cache) > 0 && b.cache[0].Time <= now {
		msg := heap.Pop(&b.cache).(*wire.SyncMessage)
		delete(expected, msg.FromProcess)
		received = append(received, msg)
	}

	b.sentVehicles = 0
	for _, msg := range b.out {
		b.sentVehicles += uint64(len(msg.Vehicles))
	}

	err := b.comm.SendReceiveVehicles(b.out, expected, now, func(msg *wire.SyncMessage) {
		if msg.Time > now {
			heap.Push(&b.cache, msg)
			return
		}
		received = append(received, msg)
	})
	if err != nil {
		return nil, err
	}
	b.out = make(map[uint32]*wire.SyncMessage)

	sort.Slice(received, func(i, j int) bool {
		if received[i].Time != received[j].Time {
			return received[i].Time < received[j].Time
		}
		return received[i].FromProcess < received[j].FromProcess
	})
	return received, nil
}

// InFlightVehicles returns the number of vehicles this rank put on the wire
// during the last exchange. Until their destinations integrate them they show
// up in no rank's pending count, so the termination check charges them here.
// A receiver that already integrated them double-counts for at most one tick.
func (b *Broker) InFlightVehicles() uint64 { return b.sentVehicles }

// GlobalSum adds value across all ranks.
func (b *Broker) GlobalSum(now uint32, value uint64) (uint64, error) {
	return b.comm.GlobalSum(now, value)
}

// messageHeap orders cached future messages by tick, then by sender.
type messageHeap []*wire.SyncMessage

func (h messageHeap) Len() int { return len(h) }
func (h messageHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].FromProcess < h[j].FromProcess
}
func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) { *h = append(*h, x.(*wire.SyncMessage)) }

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	msg := old[n-1]
	*h = old[:n-1]
	return msg
}
