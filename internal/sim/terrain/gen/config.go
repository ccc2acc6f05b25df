package gen

import (
	"fmt"
	"math"
)

// Config fixes one generation run. It is passed by value and never mutated.
type Config struct {
	Width           int     `json:"width" yaml:"width"`
	Height          int     `json:"height" yaml:"height"`
	NoiseAmplitude  float64 `json:"noise_amplitude" yaml:"noise_amplitude"`
	MaxCornerValue  float64 `json:"max_corner_value" yaml:"max_corner_value"`
	EqualCorners    bool    `json:"equal_corners" yaml:"equal_corners"`
	MaxSizeExponent int     `json:"max_size_exponent" yaml:"max_size_exponent"`
}

func (c Config) Validate() error {
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("%w: dimensions must be >= 1 (got %dx%d)", ErrInvalidConfig, c.Width, c.Height)
	}
	if !(c.NoiseAmplitude > 0) || math.IsInf(c.NoiseAmplitude, 0) {
		return fmt.Errorf("%w: noise amplitude must be a positive finite number (got %v)", ErrInvalidConfig, c.NoiseAmplitude)
	}
	if c.MaxCornerValue < 0 || math.IsNaN(c.MaxCornerValue) || math.IsInf(c.MaxCornerValue, 0) {
		return fmt.Errorf("%w: max corner value must be >= 0 (got %v)", ErrInvalidConfig, c.MaxCornerValue)
	}
	if c.MaxSizeExponent < 0 {
		return fmt.Errorf("%w: max size exponent must be >= 0 (got %d)", ErrInvalidConfig, c.MaxSizeExponent)
	}
	return nil
}
