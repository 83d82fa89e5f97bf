package sim

import (
	"fmt"

	"github.com/parallel-qsim/qsim/sim/network"
)

type linkKind uint8

const (
	// linkLocal: both endpoints owned by this partition.
	linkLocal linkKind = iota
	// linkSplitIn: owned here, the upstream node lives on another
	// partition. Free storage is reported upstream every tick.
	linkSplitIn
	// linkSplitOut: shadow of a link owned downstream. Vehicles pushed
	// here are buffered for the next exchange; storage is a mirror of
	// the remote value.
	linkSplitOut
)

// storageCap tracks how many cells of a link are occupied. Cells freed by
// departing vehicles are banked in released and become visible only at the
// next tick, which keeps a fully jammed link jammed for at least one tick.
type storageCap struct {
	max      float64
	used     float64
	released float64
}

func newStorageCap(length, permlanes, sampleSize, effectiveCellSize float64) storageCap {
	return storageCap{max: length * permlanes * sampleSize / effectiveCellSize}
}

func (s *storageCap) hasSpaceFor(occupancy float64) bool {
	return s.max-s.used >= occupancy
}

func (s *storageCap) consume(occupancy float64) {
	s.used += occupancy
}

func (s *storageCap) release(occupancy float64) {
	s.released += occupancy
}

// applyReleased makes the cells freed during this tick available.
func (s *storageCap) applyReleased() {
	s.used -= s.released
	if s.used < 0 {
		s.used = 0
	}
	s.released = 0
}

type queueEntry struct {
	vehicle      *Vehicle
	earliestExit uint32
}

// SimLink is one link of the partition-local network. The kind decides
// which of the embedded states is live: local and split-in links carry a
// real FIFO queue with flow and storage constraints, split-out links only
// buffer vehicles for the exchange and mirror the remote storage value.
type SimLink struct {
	id        uint64
	kind      linkKind
	from, to  uint64
	length    float64
	freespeed float64

	// local and split-in
	q       []queueEntry
	flow    flowCap
	storage storageCap

	// split-in
	fromPart uint32

	// split-out
	toPart     uint32
	outQ       []*Vehicle
	usedMirror float64
	mirrorMax  float64
	// occupancy handed to the exchange this tick; the downstream report
	// for the same tick cannot include it yet
	inFlight float64

	cellSize float64
}

func newSimLink(l *network.Link, part, fromPart uint32, sampleSize, effectiveCellSize float64) *SimLink {
	sl := &SimLink{
		id:        l.ID,
		from:      l.From,
		to:        l.To,
		length:    l.Length,
		freespeed: float64(l.Freespeed),
		cellSize:  effectiveCellSize,
	}
	switch {
	case l.Partition != part:
		sl.kind = linkSplitOut
		sl.toPart = l.Partition
		sl.mirrorMax = newStorageCap(l.Length, float64(l.Permlanes), sampleSize, effectiveCellSize).max
	default:
		sl.kind = linkLocal
		sl.flow = newFlowCap(float64(l.Capacity), float64(l.Permlanes), sampleSize)
		sl.storage = newStorageCap(l.Length, float64(l.Permlanes), sampleSize, effectiveCellSize)
		if fromPart != part {
			sl.kind = linkSplitIn
			sl.fromPart = fromPart
		}
	}
	return sl
}

// ID returns the global link id.
func (l *SimLink) ID() uint64 { return l.id }

// IsLocal reports whether the queue physics of this link run on this
// partition.
func (l *SimLink) IsLocal() bool { return l.kind != linkSplitOut }

// HasSpaceFor reports whether a vehicle of the given occupancy can enter.
// For split-out links the decision is made against the mirrored remote
// value, which may be up to one tick stale.
func (l *SimLink) HasSpaceFor(occupancy float64) bool {
	if l.kind == linkSplitOut {
		return l.mirrorMax-l.usedMirror >= occupancy
	}
	return l.storage.hasSpaceFor(occupancy)
}

// Push places a vehicle onto the link at time now. For queueing links the
// earliest exit is now plus the free-flow traversal time; for split-out
// links the vehicle is buffered for the next exchange and the storage
// mirror is charged so later pushes in the same tick see the space gone.
func (l *SimLink) Push(v *Vehicle, now uint32) {
	occ := v.occupancy(l.cellSize)
	if l.kind == linkSplitOut {
		l.usedMirror += occ
		l.outQ = append(l.outQ, v)
		return
	}
	l.storage.consume(occ)
	speed := v.maxSpeed(l.freespeed)
	if speed <= 0 {
		speed = 1
	}
	l.q = append(l.q, queueEntry{vehicle: v, earliestExit: now + uint32(l.length/speed)})
}

// Offers returns the head vehicle when it is allowed to leave at time now:
// its earliest exit has passed and the flow accumulator has credit.
func (l *SimLink) Offers(now uint32) (*Vehicle, bool) {
	if l.kind == linkSplitOut || len(l.q) == 0 {
		return nil, false
	}
	head := l.q[0]
	if head.earliestExit > now {
		return nil, false
	}
	l.flow.update(now)
	if !l.flow.available() {
		return nil, false
	}
	return head.vehicle, true
}

// Pop removes the head vehicle, charges the flow accumulator and banks the
// freed storage for the next tick.
func (l *SimLink) Pop() *Vehicle {
	if l.kind == linkSplitOut || len(l.q) == 0 {
		panic(fmt.Sprintf("link %d: pop on empty or shadow link", l.id))
	}
	head := l.q[0]
	l.q = l.q[1:]
	l.flow.consume(head.vehicle.Type.Pce)
	l.storage.release(head.vehicle.occupancy(l.cellSize))
	return head.vehicle
}

// TakeVehicles drains the split-out buffer for the exchange. The occupancy
// of the drained batch is retained as in-flight: the previous batch has been
// integrated downstream by now and is covered by the next report.
func (l *SimLink) TakeVehicles() []*Vehicle {
	if l.kind != linkSplitOut {
		return nil
	}
	l.inFlight = 0
	for _, v := range l.outQ {
		l.inFlight += v.occupancy(l.cellSize)
	}
	if len(l.outQ) == 0 {
		return nil
	}
	out := l.outQ
	l.outQ = nil
	return out
}

// SetUsedMirror replaces the storage mirror with the value reported by the
// owning partition. The report is built before that partition integrates the
// batch handed over this tick, so the in-flight occupancy stays charged on
// top of it.
func (l *SimLink) SetUsedMirror(used float64) {
	l.usedMirror = used + l.inFlight
}

// UsedStorage returns the occupied cells of a queueing link.
func (l *SimLink) UsedStorage() float64 { return l.storage.used }

// QueueLen returns the number of vehicles held by this link, counting the
// outbound buffer for split-out links.
func (l *SimLink) QueueLen() int {
	if l.kind == linkSplitOut {
		return len(l.outQ)
	}
	return len(l.q)
}
