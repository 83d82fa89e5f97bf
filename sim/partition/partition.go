// Package partition assigns every node of the global network to one of P
// simulation processes. It balances per-node computational weight while
// minimizing the capacity-weighted cut, since every cut link becomes a
// per-tick cross-process message.
package partition

import (
	"fmt"

	"github.com/parallel-qsim/qsim/sim/network"
)

// Assignment maps node id → partition index in [0, parts).
type Assignment map[uint64]uint32

// Partitioner is the pluggable partitioning contract. Implementations must
// be deterministic for a fixed graph, part count and seed.
type Partitioner interface {
	Partition(g *Graph, parts int) (Assignment, error)
}

type edge struct {
	to     int
	weight int64
}

// Graph is the undirected, weighted partitioning view of the network:
// one vertex per node, one (merged) edge per node pair connected by links.
type Graph struct {
	nodeIDs []uint64
	vwgt    []int64
	adj     [][]edge
}

// NewGraph converts the global network into partitioning form. Vertex
// weight is the node's CmpWeight; nodes without an explicit weight fall
// back to their in-link count, the cost driver of the queue model. Edge
// weight is the link capacity, so high-throughput links are cut last.
func NewGraph(net *network.Network) *Graph {
	g := &Graph{
		nodeIDs: make([]uint64, len(net.Nodes)),
		vwgt:    make([]int64, len(net.Nodes)),
		adj:     make([][]edge, len(net.Nodes)),
	}
	index := make(map[uint64]int, len(net.Nodes))
	for i, node := range net.Nodes {
		g.nodeIDs[i] = node.ID
		index[node.ID] = i
		if node.CmpWeight > 0 {
			g.vwgt[i] = int64(node.CmpWeight)
		} else {
			g.vwgt[i] = int64(len(node.InLinks))
			if g.vwgt[i] == 0 {
				g.vwgt[i] = 1
			}
		}
	}
	for _, link := range net.Links {
		from, to := index[link.From], index[link.To]
		if from == to {
			continue
		}
		w := int64(link.Capacity)
		if w < 1 {
			w = 1
		}
		g.addEdge(from, to, w)
		g.addEdge(to, from, w)
	}
	return g
}

// addEdge merges parallel edges by accumulating weight.
func (g *Graph) addEdge(from, to int, weight int64) {
	for i := range g.adj[from] {
		if g.adj[from][i].to == to {
			g.adj[from][i].weight += weight
			return
		}
	}
	g.adj[from] = append(g.adj[from], edge{to: to, weight: weight})
}

// NumVertices returns the vertex count.
func (g *Graph) NumVertices() int { return len(g.nodeIDs) }

// TotalVertexWeight sums all vertex weights.
func (g *Graph) TotalVertexWeight() int64 {
	var total int64
	for _, w := range g.vwgt {
		total += w
	}
	return total
}

// connected reports whether the undirected graph is a single component.
func (g *Graph) connected() bool {
	if len(g.adj) == 0 {
		return false
	}
	seen := make([]bool, len(g.adj))
	stack := []int{0}
	seen[0] = true
	count := 1
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.adj[v] {
			if !seen[e.to] {
				seen[e.to] = true
				count++
				stack = append(stack, e.to)
			}
		}
	}
	return count == len(g.adj)
}

// validate applies the fatal-at-startup configuration checks shared by all
// partitioner implementations.
func (g *Graph) validate(parts int) error {
	if parts < 1 {
		return fmt.Errorf("partition count must be at least 1, got %d", parts)
	}
	if parts > g.NumVertices() {
		return fmt.Errorf("partition count %d exceeds node count %d", parts, g.NumVertices())
	}
	if parts > 1 && !g.connected() {
		return fmt.Errorf("network graph is disconnected; partitioning requires a single component")
	}
	return nil
}

// assignment converts a vertex→part vector into node-id space.
func (g *Graph) assignment(parts []uint32) Assignment {
	a := make(Assignment, len(parts))
	for v, p := range parts {
		a[g.nodeIDs[v]] = p
	}
	return a
}
