package partition

import (
	"math/rand"
)

// Random assigns nodes round-robin after a seeded shuffle. It is the
// quality baseline the k-way partitioner is measured against and a useful
// stress input for the exchange layer, since nearly every link is cut.
type Random struct {
	Seed int64
}

func (r *Random) Partition(g *Graph, parts int) (Assignment, error) {
	if err := g.validate(parts); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(r.Seed))
	partsVec := make([]uint32, g.NumVertices())
	for i, v := range rng.Perm(g.NumVertices()) {
		partsVec[v] = uint32(i % parts)
	}
	return g.assignment(partsVec), nil
}
