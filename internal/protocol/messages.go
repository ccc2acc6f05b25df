package protocol

import (
	"heightmap.ai/internal/sim/terrain/gen"
	"heightmap.ai/internal/sim/tuning"
)

// GENERATE (client -> server). Omitted fields fall back to the server's
// tuning.
type GenerateMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	RequestID       string   `json:"request_id,omitempty"`
	Width           int      `json:"width"`
	Height          int      `json:"height"`
	NoiseAmplitude  *float64 `json:"noise_amplitude,omitempty"`
	MaxCornerValue  *float64 `json:"max_corner_value,omitempty"`
	EqualCorners    *bool    `json:"equal_corners,omitempty"`
	MaxSizeExponent *int     `json:"max_size_exponent,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`
	Format          string   `json:"format,omitempty"`
	BitDepth        int      `json:"bit_depth,omitempty"`
}

// Apply overlays the request on base. A request may lower max_size_exponent
// but never raise it above base.
func (m GenerateMsg) Apply(base tuning.Tuning) tuning.Tuning {
	t := base
	t.Width = m.Width
	t.Height = m.Height
	if m.NoiseAmplitude != nil {
		t.NoiseAmplitude = *m.NoiseAmplitude
	}
	if m.MaxCornerValue != nil {
		t.MaxCornerValue = *m.MaxCornerValue
	}
	if m.EqualCorners != nil {
		t.EqualCorners = *m.EqualCorners
	}
	if m.MaxSizeExponent != nil && *m.MaxSizeExponent < base.MaxSizeExponent {
		t.MaxSizeExponent = *m.MaxSizeExponent
	}
	if m.Seed != nil {
		t.Seed = *m.Seed
	}
	if m.Format != "" {
		t.Export.Format = m.Format
	}
	if m.BitDepth != 0 {
		t.Export.BitDepth = m.BitDepth
	}
	t.Normalize()
	return t
}

// ROUND (server -> client): one completed diamond/square round.
type RoundMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	RequestID       string  `json:"request_id,omitempty"`
	Round           int     `json:"round"`
	Rounds          int     `json:"rounds"`
	StepSize        int     `json:"step_size"`
	HalfStep        int     `json:"half_step"`
	NoiseAmplitude  float64 `json:"noise_amplitude"`
	Diamonds        int     `json:"diamonds"`
	Squares         int     `json:"squares"`
}

func NewRound(requestID string, rounds int, r gen.RoundReport) RoundMsg {
	return RoundMsg{
		Type:            TypeRound,
		ProtocolVersion: Version,
		RequestID:       requestID,
		Round:           r.Round,
		Rounds:          rounds,
		StepSize:        r.StepSize,
		HalfStep:        r.HalfStep,
		NoiseAmplitude:  r.NoiseAmplitude,
		Diamonds:        r.Diamonds,
		Squares:         r.Squares,
	}
}

// RESULT (server -> client). Data holds the cropped heightmap row-major in
// the given Encoding.
type ResultMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	RequestID       string  `json:"request_id,omitempty"`
	RunID           string  `json:"run_id"`
	Seed            int64   `json:"seed"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	GridSize        int     `json:"grid_size"`
	Rounds          int     `json:"rounds"`
	Digest          string  `json:"digest"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
	Encoding        string  `json:"encoding"`
	Data            string  `json:"data"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
