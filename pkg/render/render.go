// Package render draws 2D science images as PNG panels with
// percentile-based contrast clipping, a pixel coordinate grid, and a
// title, the quick-look display used to inspect each pipeline stage.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/stat"

	"cubealign/internal/models"
	"cubealign/pkg/colormap"
)

// titleBar is the height in canvas pixels reserved for the panel title.
const titleBar = 20

// Renderer converts grids to display panels. The zero value is not
// usable; construct with New.
type Renderer struct {
	// Scale is the magnification: each data pixel becomes a Scale x Scale
	// block on the canvas.
	Scale int

	// GridStep is the coordinate grid spacing in data pixels; zero
	// disables the overlay.
	GridStep int

	// Cmap maps normalized intensity to color.
	Cmap colormap.Map
}

// New returns a renderer with the default magnification, grid spacing
// and viridis colormap.
func New() *Renderer {
	return &Renderer{
		Scale:    2,
		GridStep: 16,
		Cmap:     colormap.Viridis,
	}
}

// Bounds computes the display contrast range of a grid: the 1st and 99th
// percentile of its finite values. An all-NaN grid falls back to the
// fixed range [0, 1] rather than failing, and a constant grid widens to
// a non-degenerate interval.
func Bounds(g *models.Grid) (lo, hi float64) {
	finite := g.Finite()
	if len(finite) == 0 {
		return 0, 1
	}
	sort.Float64s(finite)
	lo = stat.Quantile(0.01, stat.Empirical, finite, nil)
	hi = stat.Quantile(0.99, stat.Empirical, finite, nil)
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	return lo, hi
}

// Panel renders the grid with the origin at the lower row, the contrast
// range from Bounds, the coordinate grid overlay, and the title.
func (r *Renderer) Panel(g *models.Grid, title string) image.Image {
	lo, hi := Bounds(g)
	span := hi - lo

	scale := r.Scale
	if scale < 1 {
		scale = 1
	}

	w := g.Width * scale
	h := g.Height*scale + titleBar
	dc := gg.NewContext(w, h)
	dc.SetColor(color.Black)
	dc.Clear()

	nanColor := color.NRGBA{40, 40, 40, 255}
	for y := 0; y < g.Height; y++ {
		// Row 0 of the data is the bottom row of the panel.
		py := titleBar + (g.Height-1-y)*scale
		for x := 0; x < g.Width; x++ {
			v := g.At(x, y)
			var c color.Color
			if math.IsNaN(v) {
				c = nanColor
			} else {
				c = r.Cmap.At((v - lo) / span)
			}
			dc.SetColor(c)
			dc.DrawRectangle(float64(x*scale), float64(py), float64(scale), float64(scale))
			dc.Fill()
		}
	}

	if r.GridStep > 0 {
		dc.SetRGBA(1, 1, 1, 0.25)
		dc.SetLineWidth(1)
		for x := r.GridStep; x < g.Width; x += r.GridStep {
			px := float64(x * scale)
			dc.DrawLine(px, titleBar, px, float64(h))
			dc.Stroke()
		}
		for y := r.GridStep; y < g.Height; y += r.GridStep {
			py := float64(titleBar + (g.Height-y)*scale)
			dc.DrawLine(0, py, float64(w), py)
			dc.Stroke()
		}
	}

	dc.SetColor(color.White)
	dc.DrawString(title, 4, 14)

	return dc.Image()
}

// Save renders the grid and writes the panel as a PNG file, creating the
// parent directory when needed.
func (r *Renderer) Save(g *models.Grid, title, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("render: creating output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("render: creating %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, r.Panel(g, title)); err != nil {
		return fmt.Errorf("render: encoding %s: %w", path, err)
	}
	return nil
}
