package gen

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// Grid is the square working grid, row-major (cells[y*Size+x]).
// Cells that have not been written hold NaN.
type Grid struct {
	Size  int
	Cells []float64
}

func NewGrid(size int) *Grid {
	cells := make([]float64, size*size)
	nan := math.NaN()
	for i := range cells {
		cells[i] = nan
	}
	return &Grid{Size: size, Cells: cells}
}

func (g *Grid) MaxIndex() int { return g.Size - 1 }

func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Size && y < g.Size
}

func (g *Grid) index(x, y int) int {
	return x + y*g.Size
}

func (g *Grid) At(x, y int) float64 {
	return g.Cells[g.index(x, y)]
}

func (g *Grid) Set(x, y int, v float64) {
	g.Cells[g.index(x, y)] = v
}

// Unset counts cells still holding the NaN sentinel.
func (g *Grid) Unset() int {
	n := 0
	for _, v := range g.Cells {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Heightmap is the cropped result: Height rows of Width values.
// It carries no normalised range.
type Heightmap struct {
	Width  int
	Height int
	Rows   [][]float64
}

func (h Heightmap) At(x, y int) float64 {
	return h.Rows[y][x]
}

// Values flattens the rows (row-major).
func (h Heightmap) Values() []float64 {
	out := make([]float64, 0, h.Width*h.Height)
	for _, row := range h.Rows {
		out = append(out, row...)
	}
	return out
}

// HeightmapFromValues rebuilds a heightmap from row-major values.
func HeightmapFromValues(width, height int, values []float64) (Heightmap, error) {
	if width < 1 || height < 1 {
		return Heightmap{}, fmt.Errorf("heightmap dimensions must be >= 1 (got %dx%d)", width, height)
	}
	if len(values) != width*height {
		return Heightmap{}, fmt.Errorf("heightmap values length mismatch: got %d want %d", len(values), width*height)
	}
	rows := make([][]float64, height)
	for y := range rows {
		row := make([]float64, width)
		copy(row, values[y*width:(y+1)*width])
		rows[y] = row
	}
	return Heightmap{Width: width, Height: height, Rows: rows}, nil
}

// Digest hashes the dimensions and the IEEE-754 bits of every value, so two
// heightmaps share a digest only when they are bit-identical.
func (h Heightmap) Digest() [32]byte {
	d := sha256.New()
	var tmp [8]byte
	binary.LittleEndian.PutUint32(tmp[:4], uint32(h.Width))
	d.Write(tmp[:4])
	binary.LittleEndian.PutUint32(tmp[:4], uint32(h.Height))
	d.Write(tmp[:4])
	for _, row := range h.Rows {
		for _, v := range row {
			binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
			d.Write(tmp[:])
		}
	}
	var out [32]byte
	copy(out[:], d.Sum(nil))
	return out
}

func (h Heightmap) DigestHex() string {
	sum := h.Digest()
	return hex.EncodeToString(sum[:])
}
