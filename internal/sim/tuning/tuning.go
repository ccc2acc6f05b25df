package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"heightmap.ai/internal/sim/terrain/gen"
)

type Tuning struct {
	Width           int     `yaml:"width" json:"width"`
	Height          int     `yaml:"height" json:"height"`
	NoiseAmplitude  float64 `yaml:"noise_amplitude" json:"noise_amplitude"`
	MaxCornerValue  float64 `yaml:"max_corner_value" json:"max_corner_value"`
	EqualCorners    bool    `yaml:"equal_corners" json:"equal_corners"`
	MaxSizeExponent int     `yaml:"max_size_exponent" json:"max_size_exponent"`
	Seed            int64   `yaml:"seed" json:"seed"`

	Export Export `yaml:"export" json:"export"`
}

type Export struct {
	Format   string `yaml:"format" json:"format"`
	BitDepth int    `yaml:"bit_depth" json:"bit_depth"`
}

// Defaults matches the original heightmap script: a 1920x1080 map, noise 128,
// corners up to 256, independent corners, grids up to 2^14+1.
func Defaults() Tuning {
	return Tuning{
		Width:           1920,
		Height:          1080,
		NoiseAmplitude:  128,
		MaxCornerValue:  256,
		EqualCorners:    false,
		MaxSizeExponent: 14,
		Seed:            1337,
		Export: Export{
			Format:   "png",
			BitDepth: 8,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	t.Export.Format = strings.ToLower(strings.TrimSpace(t.Export.Format))
	if t.Export.Format == "" {
		t.Export.Format = "png"
	}
	if t.Export.BitDepth == 0 {
		t.Export.BitDepth = 8
	}
}

func (t Tuning) Validate() error {
	if err := t.GenConfig().Validate(); err != nil {
		return err
	}
	switch t.Export.Format {
	case "png", "tiff", "bmp":
	default:
		return fmt.Errorf("%w: export.format: unsupported %q", gen.ErrInvalidConfig, t.Export.Format)
	}
	if t.Export.BitDepth != 8 && t.Export.BitDepth != 16 {
		return fmt.Errorf("%w: export.bit_depth: must be 8 or 16 (got %d)", gen.ErrInvalidConfig, t.Export.BitDepth)
	}
	if t.Export.Format == "bmp" && t.Export.BitDepth != 8 {
		return fmt.Errorf("%w: export.bit_depth: bmp supports 8 bits only", gen.ErrInvalidConfig)
	}
	return nil
}

func (t Tuning) GenConfig() gen.Config {
	return gen.Config{
		Width:           t.Width,
		Height:          t.Height,
		NoiseAmplitude:  t.NoiseAmplitude,
		MaxCornerValue:  t.MaxCornerValue,
		EqualCorners:    t.EqualCorners,
		MaxSizeExponent: t.MaxSizeExponent,
	}
}
