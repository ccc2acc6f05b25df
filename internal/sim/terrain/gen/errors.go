package gen

import "errors"

var (
	// ErrSizeExceeded reports that the requested dimensions need a grid larger
	// than 2^MaxSizeExponent+1. It is a configuration error and is not retried.
	ErrSizeExceeded = errors.New("heightmap size exceeds max exponent")

	ErrInvalidConfig = errors.New("invalid generation config")

	// ErrInvariant marks an internal assertion failure (empty neighbour set,
	// oversized crop). Correct sizing never produces it.
	ErrInvariant = errors.New("generation invariant violated")
)
