package partition

import (
	"math/rand"

	"github.com/sirupsen/logrus"
)

// KWay is the default partitioner: multilevel k-way partitioning in the
// coarsen / partition / refine scheme. Deterministic for a fixed seed.
type KWay struct {
	// Seed drives the matching order during coarsening.
	Seed int64
	// Tolerance is the allowed relative imbalance of per-part vertex
	// weight, e.g. 0.1 for 10%.
	Tolerance float64
	// coarsenTo stops coarsening once the graph is this small.
	coarsenTo int
}

// NewKWay returns a KWay partitioner with the default 10% tolerance.
func NewKWay(seed int64) *KWay {
	return &KWay{Seed: seed, Tolerance: 0.1, coarsenTo: 64}
}

func (k *KWay) Partition(g *Graph, parts int) (Assignment, error) {
	if err := g.validate(parts); err != nil {
		return nil, err
	}

	n := g.NumVertices()
	partsVec := make([]uint32, n)
	if parts == 1 {
		return g.assignment(partsVec), nil
	}

	rng := rand.New(rand.NewSource(k.Seed))

	// coarsening phase: heavy-edge matching until the graph is small
	// enough for the greedy initial partition to be cheap and good.
	coarsenTarget := k.coarsenTo * parts
	graphs := []*Graph{g}
	projections := make([][]int, 0)
	for graphs[len(graphs)-1].NumVertices() > coarsenTarget {
		cur := graphs[len(graphs)-1]
		coarse, proj := coarsen(cur, rng)
		if coarse.NumVertices() >= cur.NumVertices() {
			break
		}
		graphs = append(graphs, coarse)
		projections = append(projections, proj)
	}

	coarsest := graphs[len(graphs)-1]
	logrus.Debugf("kway: coarsened %d vertices to %d over %d levels", n, coarsest.NumVertices(), len(graphs))

	partsVec = initialPartition(coarsest, parts)
	maxWeight := k.maxPartWeight(g, parts)
	refine(coarsest, partsVec, parts, maxWeight)

	// uncoarsening phase: project the assignment down and refine at every
	// level, where the finer boundary offers more gain moves.
	for level := len(projections) - 1; level >= 0; level-- {
		fine := graphs[level]
		proj := projections[level]
		fineParts := make([]uint32, fine.NumVertices())
		for v := range fineParts {
			fineParts[v] = partsVec[proj[v]]
		}
		refine(fine, fineParts, parts, maxWeight)
		partsVec = fineParts
	}

	return g.assignment(partsVec), nil
}

func (k *KWay) maxPartWeight(g *Graph, parts int) int64 {
	avg := float64(g.TotalVertexWeight()) / float64(parts)
	return int64(avg * (1 + k.Tolerance))
}

// coarsen contracts a heavy-edge matching. Returns the coarse graph and
// the fine-vertex → coarse-vertex projection.
func coarsen(g *Graph, rng *rand.Rand) (*Graph, []int) {
	n := g.NumVertices()
	match := make([]int, n)
	for i := range match {
		match[i] = -1
	}

	// visit in random order so matchings do not degenerate on grid-like
	// road networks
	order := rng.Perm(n)
	coarseCount := 0
	proj := make([]int, n)
	for _, v := range order {
		if match[v] >= 0 {
			continue
		}
		// heaviest unmatched neighbor wins; ties go to the first seen
		best := -1
		var bestWeight int64
		for _, e := range g.adj[v] {
			if match[e.to] < 0 && e.to != v && e.weight > bestWeight {
				best = e.to
				bestWeight = e.weight
			}
		}
		match[v] = v
		proj[v] = coarseCount
		if best >= 0 {
			match[best] = v
			proj[best] = coarseCount
		}
		coarseCount++
	}

	coarse := &Graph{
		nodeIDs: make([]uint64, coarseCount),
		vwgt:    make([]int64, coarseCount),
		adj:     make([][]edge, coarseCount),
	}
	for v := 0; v < n; v++ {
		coarse.vwgt[proj[v]] += g.vwgt[v]
	}
	for v := 0; v < n; v++ {
		cv := proj[v]
		for _, e := range g.adj[v] {
			ce := proj[e.to]
			if cv != ce {
				coarse.addEdge(cv, ce, e.weight)
			}
		}
	}
	return coarse, proj
}

// initialPartition grows parts contiguous regions along a breadth-first
// order, cutting whenever the accumulated weight reaches the target.
func initialPartition(g *Graph, parts int) []uint32 {
	n := g.NumVertices()
	order := bfsOrder(g)
	target := float64(g.TotalVertexWeight()) / float64(parts)

	partsVec := make([]uint32, n)
	p := 0
	var acc int64
	for i, v := range order {
		remVerts := n - i
		remParts := parts - 1 - p
		if (float64(acc) >= target || remVerts == remParts) && p < parts-1 {
			p++
			acc = 0
		}
		partsVec[v] = uint32(p)
		acc += g.vwgt[v]
	}
	return partsVec
}

func bfsOrder(g *Graph) []int {
	n := g.NumVertices()
	order := make([]int, 0, n)
	seen := make([]bool, n)
	queue := []int{0}
	seen[0] = true
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for _, e := range g.adj[v] {
			if !seen[e.to] {
				seen[e.to] = true
				queue = append(queue, e.to)
			}
		}
	}
	// validation guarantees connectivity for parts > 1, but keep stray
	// vertices assigned rather than dropped
	for v := 0; v < n; v++ {
		if !seen[v] {
			order = append(order, v)
		}
	}
	return order
}

// refine runs greedy boundary passes: move a vertex to the neighboring
// part with the largest cut gain, subject to the balance ceiling and to
// never emptying a part. A rebalance sweep afterwards repairs parts the
// initial slicing left overweight.
func refine(g *Graph, partsVec []uint32, parts int, maxWeight int64) {
	n := g.NumVertices()
	partWeight := make([]int64, parts)
	partCount := make([]int, parts)
	for v := 0; v < n; v++ {
		partWeight[partsVec[v]] += g.vwgt[v]
		partCount[partsVec[v]]++
	}

	conn := make([]int64, parts)
	for pass := 0; pass < 8; pass++ {
		moved := 0
		for v := 0; v < n; v++ {
			cur := int(partsVec[v])
			if partCount[cur] <= 1 {
				continue
			}
			for p := range conn {
				conn[p] = 0
			}
			boundary := false
			for _, e := range g.adj[v] {
				conn[partsVec[e.to]] += e.weight
				if partsVec[e.to] != partsVec[v] {
					boundary = true
				}
			}
			if !boundary {
				continue
			}

			best := cur
			bestGain := int64(0)
			for p := 0; p < parts; p++ {
				if p == cur || conn[p] == 0 {
					continue
				}
				if partWeight[p]+g.vwgt[v] > maxWeight {
					continue
				}
				gain := conn[p] - conn[cur]
				if gain > bestGain {
					best = p
					bestGain = gain
				}
			}
			if best != cur {
				partWeight[cur] -= g.vwgt[v]
				partCount[cur]--
				partWeight[best] += g.vwgt[v]
				partCount[best]++
				partsVec[v] = uint32(best)
				moved++
			}
		}
		if moved == 0 {
			break
		}
	}

	rebalance(g, partsVec, partWeight, partCount, parts, maxWeight)
}

// rebalance drains overweight parts by moving their cheapest boundary
// vertices into the lightest neighboring part, accepting cut regressions
// for the sake of the balance guarantee.
func rebalance(g *Graph, partsVec []uint32, partWeight []int64, partCount []int, parts int, maxWeight int64) {
	for iter := 0; iter < g.NumVertices(); iter++ {
		over := -1
		for p := 0; p < parts; p++ {
			if partWeight[p] > maxWeight && (over < 0 || partWeight[p] > partWeight[over]) {
				over = p
			}
		}
		if over < 0 {
			return
		}

		bestVertex, bestTarget := -1, -1
		var bestLoss int64
		for v := 0; v < g.NumVertices(); v++ {
			if int(partsVec[v]) != over || partCount[over] <= 1 {
				continue
			}
			var internal int64
			target, targetConn := -1, int64(-1)
			for _, e := range g.adj[v] {
				p := int(partsVec[e.to])
				if p == over {
					internal += e.weight
				} else if partWeight[p]+g.vwgt[v] <= maxWeight && e.weight > targetConn {
					target = p
					targetConn = e.weight
				}
			}
			if target < 0 {
				continue
			}
			loss := internal - targetConn
			if bestVertex < 0 || loss < bestLoss {
				bestVertex, bestTarget, bestLoss = v, target, loss
			}
		}
		if bestVertex < 0 {
			// nothing movable; the tolerance cannot be met on this graph
			return
		}
		partWeight[over] -= g.vwgt[bestVertex]
		partCount[over]--
		partWeight[bestTarget] += g.vwgt[bestVertex]
		partCount[bestTarget]++
		partsVec[bestVertex] = uint32(bestTarget)
	}
}
