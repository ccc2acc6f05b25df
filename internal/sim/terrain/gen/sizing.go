package gen

import (
	"fmt"

	"heightmap.ai/internal/sim/logic/mathx"
)

// Sizing describes the square working grid chosen for a run.
type Sizing struct {
	Exponent int // n in 2^n+1, also the number of rounds
	Size     int
	MaxIndex int
	StepSize int
	HalfStep int
}

// SizeFor returns the smallest 2^n+1 side that covers max(width, height),
// scanning n upwards from 0 and giving up past maxExponent.
func SizeFor(width, height, maxExponent int) (Sizing, error) {
	side := mathx.MaxInt(width, height)
	limit := maxExponent
	if limit > mathx.MaxExponent {
		limit = mathx.MaxExponent
	}
	for n := 0; n <= limit; n++ {
		size := mathx.Pow2Plus1(n)
		if size < side {
			continue
		}
		step := size - 1
		return Sizing{
			Exponent: n,
			Size:     size,
			MaxIndex: size - 1,
			StepSize: step,
			HalfStep: step / 2,
		}, nil
	}
	if limit < 0 {
		return Sizing{}, fmt.Errorf("%w: side %d with max exponent %d", ErrSizeExceeded, side, maxExponent)
	}
	return Sizing{}, fmt.Errorf("%w: side %d > 2^%d+1 (%d)", ErrSizeExceeded, side, limit, mathx.Pow2Plus1(limit))
}
