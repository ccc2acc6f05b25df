// Package gen builds Diamond-Square heightmaps.
//
// A run sizes a 2^n+1 working grid, seeds its corners, fills the interior in
// n diamond/square rounds with halving noise and crops the requested
// top-left rectangle. Every random draw comes from the injected Source in a
// fixed order, so a seeded run is reproducible bit for bit.
package gen

import "context"

// Option tunes a run without touching its Config.
type Option func(*options)

type options struct {
	ctx      context.Context
	observer func(RoundReport)
}

// WithObserver calls fn after every completed round.
func WithObserver(fn func(RoundReport)) Option {
	return func(o *options) { o.observer = fn }
}

// WithContext aborts the run between rounds once ctx is done.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// Result is a completed run.
type Result struct {
	Sizing    Sizing
	Rounds    int
	Heightmap Heightmap
}

// GenerateGrid sizes, seeds and fills the full working grid. Configuration
// errors are returned before anything is allocated.
func GenerateGrid(cfg Config, rng Source, opts ...Option) (*Grid, Sizing, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Sizing{}, err
	}
	sz, err := SizeFor(cfg.Width, cfg.Height, cfg.MaxSizeExponent)
	if err != nil {
		return nil, Sizing{}, err
	}
	o := options{ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}

	g := NewGrid(sz.Size)
	SeedCorners(g, rng, cfg.MaxCornerValue, cfg.EqualCorners)

	eng := NewEngine(g, rng, cfg.NoiseAmplitude)
	eng.SetObserver(o.observer)
	for !eng.Done() {
		if err := o.ctx.Err(); err != nil {
			return nil, Sizing{}, err
		}
		if _, err := eng.Step(); err != nil {
			return nil, Sizing{}, err
		}
	}
	return g, sz, nil
}

// Generate runs the whole pipeline and returns the cropped heightmap.
func Generate(cfg Config, rng Source, opts ...Option) (Result, error) {
	g, sz, err := GenerateGrid(cfg, rng, opts...)
	if err != nil {
		return Result{}, err
	}
	hm, err := Crop(g, cfg.Width, cfg.Height)
	if err != nil {
		return Result{}, err
	}
	return Result{Sizing: sz, Rounds: sz.Exponent, Heightmap: hm}, nil
}
