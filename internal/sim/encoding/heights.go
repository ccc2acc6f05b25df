package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodingF32 names the wire form produced by EncodeHeights.
const EncodingF32 = "F32LE_B64"

// EncodeHeights encodes values as base64(little-endian float32...).
// Heights are narrowed to float32; the snapshot keeps full precision.
func EncodeHeights(values []float64) string {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func DecodeHeights(b64 string) ([]float64, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("bad heights payload: %d bytes is not a multiple of 4", len(raw))
	}
	out := make([]float64, len(raw)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	return out, nil
}
