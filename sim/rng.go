package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// Two runs with the same master seed and identical configuration must
// produce identical event streams. Each partition derives its own RNG from
// the master seed so that in-link service order is reproducible no matter
// how goroutines are scheduled.

// SubsystemRank returns the RNG subsystem name for partition rank.
func SubsystemRank(rank uint32) string {
	return fmt.Sprintf("rank_%d", rank)
}

// NewRankRNG returns the deterministically derived RNG for one partition:
// master seed XOR fnv1a64 of the subsystem name, so ranks are isolated
// from each other while staying reproducible.
func NewRankRNG(masterSeed int64, rank uint32) *rand.Rand {
	return rand.New(rand.NewSource(masterSeed ^ fnv1a64(SubsystemRank(rank))))
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
