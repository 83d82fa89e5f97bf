package sim

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/parallel-qsim/qsim/sim/network"
	"github.com/parallel-qsim/qsim/sim/wire"
)

// simNode is an owned junction with its in-links and their service
// weights. In-links are served by weighted random draw so that a
// high-capacity feeder gets proportionally more chances per tick.
type simNode struct {
	id      uint64
	inLinks []uint64
	weights []float64
}

// SplitStorage is one per-tick free-storage report for a split-in link,
// destined for the upstream partition that mirrors it.
type SplitStorage struct {
	LinkID   uint64
	FromPart uint32
	Used     float64
}

// SimNetwork is one partition's view of the global network: the owned
// nodes, every link touching them, and shadows of the remote links that
// owned nodes feed into.
type SimNetwork struct {
	part       uint32
	global     *network.Network
	nodes      []*simNode
	links      map[uint64]*SimLink
	linkOrder  []uint64
	rng        *rand.Rand
	sampleSize float64
	strict     bool
}

// NewSimNetwork builds the partition-local view for part. The global
// network must already carry its partition assignment.
func NewSimNetwork(global *network.Network, part uint32, sampleSize float64, rng *rand.Rand) *SimNetwork {
	sn := &SimNetwork{
		part:       part,
		global:     global,
		links:      make(map[uint64]*SimLink),
		rng:        rng,
		sampleSize: sampleSize,
	}
	cellSize := float64(global.EffectiveCellSize)
	addLink := func(id uint64) {
		if _, ok := sn.links[id]; ok {
			return
		}
		l := global.Link(id)
		fromPart := global.Node(l.From).Partition
		sn.links[id] = newSimLink(l, part, fromPart, sampleSize, cellSize)
	}
	for _, node := range global.Nodes {
		if node.Partition != part {
			continue
		}
		owned := &simNode{id: node.ID}
		for _, in := range node.InLinks {
			addLink(in)
			owned.inLinks = append(owned.inLinks, in)
			owned.weights = append(owned.weights, inLinkWeight(global.Link(in)))
		}
		for _, out := range node.OutLinks {
			addLink(out)
		}
		sn.nodes = append(sn.nodes, owned)
	}
	sort.Slice(sn.nodes, func(i, j int) bool { return sn.nodes[i].id < sn.nodes[j].id })
	for id := range sn.links {
		sn.linkOrder = append(sn.linkOrder, id)
	}
	sort.Slice(sn.linkOrder, func(i, j int) bool { return sn.linkOrder[i] < sn.linkOrder[j] })
	return sn
}

func inLinkWeight(l *network.Link) float64 {
	if l.Capacity > 0 {
		return float64(l.Capacity)
	}
	return 1
}

// SetStrict enables occupancy invariant checks after every tick.
func (sn *SimNetwork) SetStrict(strict bool) { sn.strict = strict }

// Part returns the partition this view simulates.
func (sn *SimNetwork) Part() uint32 { return sn.part }

// EffectiveCellSize returns the storage cell size of the scenario.
func (sn *SimNetwork) EffectiveCellSize() float64 {
	return float64(sn.global.EffectiveCellSize)
}

// Link returns the local view of a link, or nil when the link does not
// touch this partition.
func (sn *SimNetwork) Link(id uint64) *SimLink { return sn.links[id] }

// Owns reports whether the queue of link id runs on this partition.
func (sn *SimNetwork) Owns(id uint64) bool {
	l, ok := sn.links[id]
	return ok && l.IsLocal()
}

// OwnerOf resolves the owning partition of any link in the scenario.
func (sn *SimNetwork) OwnerOf(id uint64) uint32 { return sn.global.OwnerOf(id) }

// Neighbors returns the sorted set of partitions this one exchanges
// messages with: upstream partitions feeding split-in links and downstream
// partitions owning split-out targets.
func (sn *SimNetwork) Neighbors() []uint32 {
	seen := make(map[uint32]bool)
	for _, id := range sn.linkOrder {
		switch l := sn.links[id]; l.kind {
		case linkSplitIn:
			seen[l.fromPart] = true
		case linkSplitOut:
			seen[l.toPart] = true
		}
	}
	out := make([]uint32, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PushEnRoute places a vehicle onto its current route link, which must be
// known to this partition. Used for departures and for vehicles received
// from upstream partitions.
func (sn *SimNetwork) PushEnRoute(v *Vehicle, now uint32) error {
	linkID, ok := v.CurrLinkID()
	if !ok {
		return fmt.Errorf("vehicle %d has no current route link", v.ID)
	}
	l, ok := sn.links[linkID]
	if !ok {
		return fmt.Errorf("vehicle %d routed onto link %d unknown to partition %d", v.ID, linkID, sn.part)
	}
	l.Push(v, now)
	return nil
}

// MoveNodes runs the node phase of one tick: every owned node services its
// in-links in weighted random order, moving eligible head vehicles onto
// their next link or out of the network. Returns the vehicles that
// completed their route this tick.
func (sn *SimNetwork) MoveNodes(events *EventsPublisher, now uint32) []*Vehicle {
	var exited []*Vehicle
	for _, node := range sn.nodes {
		exited = sn.moveNode(node, events, now, exited)
	}
	if sn.strict {
		sn.checkOccupancy()
	}
	return exited
}

func (sn *SimNetwork) moveNode(node *simNode, events *EventsPublisher, now uint32, exited []*Vehicle) []*Vehicle {
	if len(node.inLinks) == 0 {
		return exited
	}
	blocked := make([]bool, len(node.inLinks))
	activeWeight := 0.0
	for i := range node.inLinks {
		activeWeight += node.weights[i]
	}
	remaining := len(node.inLinks)
	for remaining > 0 {
		idx := sn.drawInLink(node, blocked, activeWeight)
		link := sn.links[node.inLinks[idx]]
		if sn.serveHead(link, events, now, &exited) {
			continue
		}
		blocked[idx] = true
		activeWeight -= node.weights[idx]
		remaining--
	}
	return exited
}

// drawInLink picks one unblocked in-link index, weighted by capacity.
func (sn *SimNetwork) drawInLink(node *simNode, blocked []bool, activeWeight float64) int {
	r := sn.rng.Float64() * activeWeight
	for i := range node.inLinks {
		if blocked[i] {
			continue
		}
		r -= node.weights[i]
		if r <= 0 {
			return i
		}
	}
	// numeric slack: fall back to the last unblocked index
	for i := len(node.inLinks) - 1; i >= 0; i-- {
		if !blocked[i] {
			return i
		}
	}
	panic("draw on fully blocked node")
}

// serveHead moves the head vehicle of link if it may leave now and its
// next link has room. Reports whether a vehicle moved.
func (sn *SimNetwork) serveHead(link *SimLink, events *EventsPublisher, now uint32, exited *[]*Vehicle) bool {
	veh, ok := link.Offers(now)
	if !ok {
		return false
	}
	nextID, hasNext := veh.PeekNextLinkID()
	if !hasNext {
		link.Pop()
		events.Publish(now, wire.EventLinkLeave, veh.ID, link.ID())
		*exited = append(*exited, veh)
		return true
	}
	next, known := sn.links[nextID]
	if !known {
		panic(fmt.Sprintf("vehicle %d routed from link %d onto link %d unknown to partition %d",
			veh.ID, link.ID(), nextID, sn.part))
	}
	if !next.HasSpaceFor(veh.occupancy(float64(sn.global.EffectiveCellSize))) {
		return false
	}
	link.Pop()
	events.Publish(now, wire.EventLinkLeave, veh.ID, link.ID())
	veh.AdvanceRoute()
	events.Publish(now, wire.EventLinkEnter, veh.ID, nextID)
	next.Push(veh, now)
	return true
}

// MoveLinks runs the link phase of one tick: storage freed during the node
// phase becomes visible, split-in links report their occupancy upstream and
// split-out buffers are drained for the exchange.
func (sn *SimNetwork) MoveLinks(now uint32) (out []*Vehicle, reports []SplitStorage) {
	for _, id := range sn.linkOrder {
		l := sn.links[id]
		switch l.kind {
		case linkLocal:
			l.storage.applyReleased()
		case linkSplitIn:
			l.storage.applyReleased()
			reports = append(reports, SplitStorage{LinkID: id, FromPart: l.fromPart, Used: l.storage.used})
		case linkSplitOut:
			out = append(out, l.TakeVehicles()...)
		}
	}
	return out, reports
}

// ApplyStorageCaps overwrites split-out storage mirrors with the values
// reported by the owning partitions.
func (sn *SimNetwork) ApplyStorageCaps(caps []wire.StorageCap) {
	for i := range caps {
		l, ok := sn.links[caps[i].LinkID]
		if !ok || l.kind != linkSplitOut {
			continue
		}
		l.SetUsedMirror(float64(caps[i].Value))
	}
}

// VehicleCount returns the number of vehicles currently held by this
// partition's links, including outbound buffers.
func (sn *SimNetwork) VehicleCount() int {
	total := 0
	for _, id := range sn.linkOrder {
		total += sn.links[id].QueueLen()
	}
	return total
}

func (sn *SimNetwork) checkOccupancy() {
	const slack = 1e-9
	for _, id := range sn.linkOrder {
		l := sn.links[id]
		if l.kind == linkSplitOut {
			continue
		}
		if l.storage.used > l.storage.max+slack {
			panic(fmt.Sprintf("link %d occupancy %.3f exceeds storage capacity %.3f",
				id, l.storage.used, l.storage.max))
		}
	}
}
