package gen

import (
	"math/rand/v2"

	"heightmap.ai/internal/sim/logic/mathx"
)

// Source is the random stream threaded through one run. Draws are consumed
// strictly in order, so a seeded source replays a run bit for bit.
type Source interface {
	Float64() float64
}

// NewSource returns the default seeded source (PCG).
func NewSource(seed int64) *rand.Rand {
	s := uint64(seed)
	return rand.New(rand.NewPCG(s, mathx.Mix64(s)))
}

// uniform draws from [lo, hi].
func uniform(rng Source, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}
