package gen

import (
	"fmt"
	"math"
)

// Neighbour offsets as (dx, dy) unit vectors. The order fixes the summation
// order and therefore the exact bits of every mean.
var (
	// Corners of the square whose top-left is the scan position.
	squareOffsets = [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	// Edge neighbours of a square-step point: down, right, up, left.
	diamondOffsets = [4][2]int{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}
)

// StepState is the loop state of the displacement engine.
type StepState struct {
	Round          int // rounds completed so far
	StepSize       int
	HalfStep       int
	NoiseAmplitude float64
}

// RoundReport describes one completed round.
type RoundReport struct {
	Round              int     `json:"round"` // 1-based
	StepSize           int     `json:"step_size"`
	HalfStep           int     `json:"half_step"`
	NoiseAmplitude     float64 `json:"noise_amplitude"`
	NextNoiseAmplitude float64 `json:"next_noise_amplitude"`
	Diamonds           int     `json:"diamonds"`
	Squares            int     `json:"squares"`
}

// Engine runs the diamond/square rounds over a corner-seeded grid.
type Engine struct {
	grid  *Grid
	rng   Source
	state StepState

	observer func(RoundReport)
}

func NewEngine(g *Grid, rng Source, noiseAmplitude float64) *Engine {
	step := g.Size - 1
	return &Engine{
		grid: g,
		rng:  rng,
		state: StepState{
			StepSize:       step,
			HalfStep:       step / 2,
			NoiseAmplitude: noiseAmplitude,
		},
	}
}

// SetObserver registers fn to be called after every round.
func (e *Engine) SetObserver(fn func(RoundReport)) { e.observer = fn }

func (e *Engine) State() StepState { return e.state }

func (e *Engine) Done() bool { return e.state.StepSize <= 1 }

// Run executes rounds until the grid is fully populated.
func (e *Engine) Run() error {
	for !e.Done() {
		if _, err := e.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes a single round: diamond pass, square pass, then halves the
// step and the noise amplitude (never below 1).
func (e *Engine) Step() (RoundReport, error) {
	if e.Done() {
		return RoundReport{}, fmt.Errorf("%w: step after completion", ErrInvariant)
	}
	diamonds, err := e.diamondPass()
	if err != nil {
		return RoundReport{}, err
	}
	squares, err := e.squarePass()
	if err != nil {
		return RoundReport{}, err
	}

	rep := RoundReport{
		Round:          e.state.Round + 1,
		StepSize:       e.state.StepSize,
		HalfStep:       e.state.HalfStep,
		NoiseAmplitude: e.state.NoiseAmplitude,
		Diamonds:       diamonds,
		Squares:        squares,
	}

	e.state.Round++
	e.state.NoiseAmplitude = math.Max(e.state.NoiseAmplitude/2, 1)
	e.state.StepSize /= 2
	e.state.HalfStep = e.state.StepSize / 2
	rep.NextNoiseAmplitude = e.state.NoiseAmplitude

	if e.observer != nil {
		e.observer(rep)
	}
	return rep, nil
}

func (e *Engine) diamondPass() (int, error) {
	step, half := e.state.StepSize, e.state.HalfStep
	maxIndex := e.grid.MaxIndex()
	n := 0
	for x := 0; x < maxIndex; x += step {
		for y := 0; y < maxIndex; y += step {
			avg, err := e.mean(x, y, &squareOffsets, step)
			if err != nil {
				return n, err
			}
			e.grid.Set(x+half, y+half, avg+e.noise())
			n++
		}
	}
	return n, nil
}

// squarePass walks the edge midpoints column by column. Even columns (by
// counter) hold the midpoints of vertical edges, odd columns those of
// horizontal edges plus the rows shared with the diamond centres.
func (e *Engine) squarePass() (int, error) {
	step, half := e.state.StepSize, e.state.HalfStep
	maxIndex := e.grid.MaxIndex()
	n := 0
	col := 0
	for x := 0; x <= maxIndex; x += half {
		yStart, yEnd := 0, e.grid.Size
		if col%2 == 0 {
			yStart, yEnd = half, maxIndex
		}
		for y := yStart; y < yEnd; y += step {
			avg, err := e.mean(x, y, &diamondOffsets, half)
			if err != nil {
				return n, err
			}
			e.grid.Set(x, y, avg+e.noise())
			n++
		}
		col++
	}
	return n, nil
}

// mean averages the in-range neighbours of (x, y) at offsets scaled by dist.
// Out-of-range neighbours are skipped.
func (e *Engine) mean(x, y int, offsets *[4][2]int, dist int) (float64, error) {
	var sum float64
	n := 0
	for _, o := range offsets {
		nx, ny := x+o[0]*dist, y+o[1]*dist
		if !e.grid.InBounds(nx, ny) {
			continue
		}
		sum += e.grid.At(nx, ny)
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no neighbours in range at (%d,%d)", ErrInvariant, x, y)
	}
	return sum / float64(n), nil
}

func (e *Engine) noise() float64 {
	a := e.state.NoiseAmplitude
	return uniform(e.rng, -a, a)
}
