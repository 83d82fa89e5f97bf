// Package network holds the global, immutable road network: every node and
// link of the scenario, regardless of which process simulates it. It is
// loaded once at startup and only read afterwards; partition assignments
// are stamped onto it before the per-process views are built.
package network

import (
	"fmt"
	"os"

	"github.com/parallel-qsim/qsim/sim/wire"
)

// DefaultEffectiveCellSize is the spatial quantum (meters) a single
// passenger car occupies when converting link length into storage cells.
const DefaultEffectiveCellSize = 7.5

// Node is one junction of the road network.
type Node struct {
	ID        uint64
	X, Y      float64
	Partition uint32
	CmpWeight uint32

	InLinks  []uint64
	OutLinks []uint64
}

// Link is one directed road segment. Capacity is vehicles per hour,
// Freespeed m/s. Partition always equals the partition of the To node:
// outflow decisions are made by the receiving side, so the downstream
// process owns the queue.
type Link struct {
	ID        uint64
	From, To  uint64
	Length    float64
	Capacity  float32
	Freespeed float32
	Permlanes float32
	Modes     []uint64
	Partition uint32
}

// Network is the ordered collection of nodes and links plus the effective
// cell size. Topology never changes during a run.
type Network struct {
	Nodes             []*Node
	Links             []*Link
	EffectiveCellSize float32

	nodeIndex map[uint64]*Node
	linkIndex map[uint64]*Link
}

func New() *Network {
	return &Network{
		EffectiveCellSize: DefaultEffectiveCellSize,
		nodeIndex:         make(map[uint64]*Node),
		linkIndex:         make(map[uint64]*Link),
	}
}

// AddNode registers a node. Node ids must be unique.
func (n *Network) AddNode(node *Node) error {
	if _, exists := n.nodeIndex[node.ID]; exists {
		return fmt.Errorf("duplicate node id %d", node.ID)
	}
	n.Nodes = append(n.Nodes, node)
	n.nodeIndex[node.ID] = node
	return nil
}

// AddLink registers a link. Both endpoints must already exist; the link is
// wired into the endpoint adjacency lists and its partition is derived
// from the To node.
func (n *Network) AddLink(link *Link) error {
	if _, exists := n.linkIndex[link.ID]; exists {
		return fmt.Errorf("duplicate link id %d", link.ID)
	}
	from, ok := n.nodeIndex[link.From]
	if !ok {
		return fmt.Errorf("link %d references missing from-node %d", link.ID, link.From)
	}
	to, ok := n.nodeIndex[link.To]
	if !ok {
		return fmt.Errorf("link %d references missing to-node %d", link.ID, link.To)
	}

	link.Partition = to.Partition
	n.Links = append(n.Links, link)
	n.linkIndex[link.ID] = link
	from.OutLinks = append(from.OutLinks, link.ID)
	to.InLinks = append(to.InLinks, link.ID)
	return nil
}

// Node returns the node with the given id, or nil.
func (n *Network) Node(id uint64) *Node { return n.nodeIndex[id] }

// Link returns the link with the given id, or nil.
func (n *Network) Link(id uint64) *Link { return n.linkIndex[id] }

// OwnerOf returns the partition owning the link's queue. Panics on unknown
// ids, which can only happen on a corrupt route.
func (n *Network) OwnerOf(linkID uint64) uint32 {
	link, ok := n.linkIndex[linkID]
	if !ok {
		panic(fmt.Sprintf("owner lookup for unknown link %d", linkID))
	}
	return link.Partition
}

// ApplyPartition stamps a node→partition assignment onto the network and
// re-derives every link's partition from its To node.
func (n *Network) ApplyPartition(assignment map[uint64]uint32) error {
	for _, node := range n.Nodes {
		part, ok := assignment[node.ID]
		if !ok {
			return fmt.Errorf("assignment misses node %d", node.ID)
		}
		node.Partition = part
	}
	for _, link := range n.Links {
		link.Partition = n.nodeIndex[link.To].Partition
	}
	return nil
}

// NumPartitions returns one more than the highest partition index in use.
func (n *Network) NumPartitions() uint32 {
	var max uint32
	for _, node := range n.Nodes {
		if node.Partition > max {
			max = node.Partition
		}
	}
	return max + 1
}

// Validate checks referential integrity and the link-ownership rule.
func (n *Network) Validate() error {
	if len(n.Nodes) == 0 {
		return fmt.Errorf("network has no nodes")
	}
	if n.EffectiveCellSize <= 0 {
		return fmt.Errorf("effective cell size must be positive, got %v", n.EffectiveCellSize)
	}
	for _, link := range n.Links {
		to := n.nodeIndex[link.To]
		if to == nil {
			return fmt.Errorf("link %d references missing to-node %d", link.ID, link.To)
		}
		if n.nodeIndex[link.From] == nil {
			return fmt.Errorf("link %d references missing from-node %d", link.ID, link.From)
		}
		if link.Partition != to.Partition {
			return fmt.Errorf("link %d partition %d does not match its to-node's partition %d",
				link.ID, link.Partition, to.Partition)
		}
	}
	return nil
}

// FromWire builds a Network from its wire form.
func FromWire(w *wire.Network) (*Network, error) {
	n := New()
	if w.EffectiveCellSize > 0 {
		n.EffectiveCellSize = w.EffectiveCellSize
	}
	for i := range w.Nodes {
		wn := &w.Nodes[i]
		if err := n.AddNode(&Node{ID: wn.ID, X: wn.X, Y: wn.Y, Partition: wn.Partition, CmpWeight: wn.CmpWeight}); err != nil {
			return nil, err
		}
	}
	for i := range w.Links {
		wl := &w.Links[i]
		err := n.AddLink(&Link{
			ID: wl.ID, From: wl.From, To: wl.To,
			Length: wl.Length, Capacity: wl.Capacity, Freespeed: wl.Freespeed,
			Permlanes: wl.Permlanes, Modes: wl.Modes,
		})
		if err != nil {
			return nil, err
		}
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// ToWire converts the network back to its wire form, preserving order.
func (n *Network) ToWire() *wire.Network {
	w := &wire.Network{EffectiveCellSize: n.EffectiveCellSize}
	for _, node := range n.Nodes {
		w.Nodes = append(w.Nodes, wire.Node{
			ID: node.ID, X: node.X, Y: node.Y,
			Partition: node.Partition, CmpWeight: node.CmpWeight,
		})
	}
	for _, link := range n.Links {
		w.Links = append(w.Links, wire.Link{
			ID: link.ID, From: link.From, To: link.To,
			Length: link.Length, Capacity: link.Capacity, Freespeed: link.Freespeed,
			Permlanes: link.Permlanes, Modes: link.Modes, Partition: link.Partition,
		})
	}
	return w
}

// ReadFile loads a wire-encoded network file.
func ReadFile(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading network file: %w", err)
	}
	var w wire.Network
	if err := w.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("decoding network file %s: %w", path, err)
	}
	return FromWire(&w)
}

// WriteFile stores the network in wire form.
func (n *Network) WriteFile(path string) error {
	if err := os.WriteFile(path, n.ToWire().Marshal(), 0o644); err != nil {
		return fmt.Errorf("writing network file: %w", err)
	}
	return nil
}
