package gen

// cornerOrder is the fixed draw order: upper-left, upper-right, lower-left,
// lower-right, as unit (x, y) vectors scaled by the max index.
var cornerOrder = [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

// SeedCorners writes the four corners of g. With equal set a single draw in
// [0, maxCorner] is shared by all four; otherwise each corner draws its own.
func SeedCorners(g *Grid, rng Source, maxCorner float64, equal bool) {
	m := g.MaxIndex()
	var shared float64
	if equal {
		shared = uniform(rng, 0, maxCorner)
	}
	for _, c := range cornerOrder {
		v := shared
		if !equal {
			v = uniform(rng, 0, maxCorner)
		}
		g.Set(c[0]*m, c[1]*m, v)
	}
}
