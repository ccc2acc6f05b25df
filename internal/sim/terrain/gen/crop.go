package gen

import "fmt"

// Crop copies the top-left height x width block of g. It never resamples.
func Crop(g *Grid, width, height int) (Heightmap, error) {
	if width < 1 || height < 1 || width > g.Size || height > g.Size {
		return Heightmap{}, fmt.Errorf("%w: crop %dx%d out of grid side %d", ErrInvariant, width, height, g.Size)
	}
	rows := make([][]float64, height)
	for y := range rows {
		start := y * g.Size
		row := make([]float64, width)
		copy(row, g.Cells[start:start+width])
		rows[y] = row
	}
	return Heightmap{Width: width, Height: height, Rows: rows}, nil
}
