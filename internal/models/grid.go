package models

import (
	"math"
)

// Grid is a 2D image plane stored as a 1D array in row-major order.
// Row 0 is the bottom row of the image (FITS convention), so a Grid
// rendered with origin at the lower row displays the way the data is
// stored on disk.
type Grid struct {
	// Data holds Height*Width samples, row-major, row 0 first.
	Data []float64

	// Width is the number of columns (FITS NAXIS1).
	Width int

	// Height is the number of rows (FITS NAXIS2).
	Height int
}

// NewGrid allocates a zero-filled grid with the given dimensions.
func NewGrid(width, height int) *Grid {
	return &Grid{
		Data:   make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the sample at column x, row y. No bounds checking.
func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

// Set stores v at column x, row y. No bounds checking.
func (g *Grid) Set(x, y int, v float64) {
	g.Data[y*g.Width+x] = v
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := &Grid{
		Data:   make([]float64, len(g.Data)),
		Width:  g.Width,
		Height: g.Height,
	}
	copy(out.Data, g.Data)
	return out
}

// SameShape reports whether the two grids have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

// Finite returns the finite samples of the grid, skipping NaN and
// infinite placeholders for invalid pixels.
func (g *Grid) Finite() []float64 {
	out := make([]float64, 0, len(g.Data))
	for _, v := range g.Data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// Fill sets every sample to v.
func (g *Grid) Fill(v float64) {
	for i := range g.Data {
		g.Data[i] = v
	}
}
