package surface

import "math"

// Grid is a dense, row-major snapshot of a surface. It is a copy: callers
// may keep and modify it freely.
type Grid struct {
	Width  int
	Height int
	Data   []float64 // len == Width*Height, index y*Width + x
}

func newGrid(w, h int) *Grid {
	return &Grid{Width: w, Height: h, Data: make([]float64, w*h)}
}

// At returns the cell at (x, y). It panics when out of range, like a slice.
func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

// Max returns the largest absolute cell value.
func (g *Grid) Max() float64 {
	var m float64
	for _, v := range g.Data {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// Normalize returns a copy scaled so that the largest absolute value is 1.
// An all-zero grid is returned as a zero copy.
func (g *Grid) Normalize() *Grid {
	out := &Grid{Width: g.Width, Height: g.Height, Data: make([]float64, len(g.Data))}
	m := g.Max()
	if m == 0 {
		return out
	}
	for i, v := range g.Data {
		out.Data[i] = v / m
	}
	return out
}
