package partition

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Quality summarizes a partition assignment: per-part weights, their
// imbalance relative to the mean, and the capacity-weighted cut.
type Quality struct {
	Parts       int
	PartWeights []float64
	// Imbalance is maxPartWeight / meanPartWeight; 1.0 is perfect.
	Imbalance float64
	// CutWeight is the summed weight of edges whose endpoints live in
	// different parts.
	CutWeight float64
	// CutFraction is CutWeight over the total edge weight.
	CutFraction float64
}

// Evaluate computes the Quality of an assignment over the graph it was
// produced from.
func Evaluate(g *Graph, a Assignment, parts int) Quality {
	weights := make([]float64, parts)
	for v, id := range g.nodeIDs {
		weights[a[id]] += float64(g.vwgt[v])
	}

	var cut, total float64
	for v := range g.adj {
		vPart := a[g.nodeIDs[v]]
		for _, e := range g.adj[v] {
			// each undirected edge appears twice in the adjacency lists
			w := float64(e.weight) / 2
			total += w
			if a[g.nodeIDs[e.to]] != vPart {
				cut += w
			}
		}
	}

	q := Quality{
		Parts:       parts,
		PartWeights: weights,
		CutWeight:   cut,
	}
	if mean := stat.Mean(weights, nil); mean > 0 {
		q.Imbalance = floats.Max(weights) / mean
	}
	if total > 0 {
		q.CutFraction = cut / total
	}
	return q
}

func (q Quality) String() string {
	return fmt.Sprintf("parts=%d imbalance=%.3f cut=%.0f (%.1f%% of edge weight)",
		q.Parts, q.Imbalance, q.CutWeight, q.CutFraction*100)
}
