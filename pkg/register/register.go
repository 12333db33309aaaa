// Package register estimates and applies the translational offset between
// two images of the same scene. Three interchangeable estimation strategies
// are provided: FFT cross-correlation, chi-squared minimization, and
// sub-pixel phase correlation. Shifts are applied with a circular
// (wraparound) roll along each axis independently.
package register

import (
	"fmt"
	"math"

	"cubealign/internal/models"
)

// Shift is the estimated misalignment of a moving image relative to a
// reference: the moving image equals the reference rolled by (Dy, Dx).
// ErrDy/ErrDx are 1-sigma uncertainties where the method provides them.
type Shift struct {
	Dy, Dx       float64
	ErrDy, ErrDx float64
}

// Method estimates the shift of a moving image relative to a reference
// image of identical shape.
type Method interface {
	Name() string
	Estimate(moving, ref *models.Grid) (Shift, error)
}

// Methods returns the named estimation strategies, or an error naming the
// first unknown entry. Supported names: crosscorr, chi2, subpixel.
func Methods(names []string) ([]Method, error) {
	out := make([]Method, 0, len(names))
	for _, name := range names {
		switch name {
		case "crosscorr":
			out = append(out, &CrossCorrelation{})
		case "chi2":
			out = append(out, &ChiSquared{})
		case "subpixel":
			out = append(out, &SubPixel{})
		default:
			return nil, fmt.Errorf("register: unknown method %q", name)
		}
	}
	return out, nil
}

// Roll circularly shifts g by dy rows and dx columns: output pixel (y, x)
// takes the value of input pixel ((y-dy) mod H, (x-dx) mod W). Content
// pushed past an edge wraps around to the opposite edge. Roll(g, 0, 0)
// returns an exact copy, and Roll(Roll(g, dy, dx), -dy, -dx) restores the
// input exactly.
func Roll(g *models.Grid, dy, dx int) *models.Grid {
	out := models.NewGrid(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		sy := mod(y-dy, g.Height)
		for x := 0; x < g.Width; x++ {
			sx := mod(x-dx, g.Width)
			out.Set(x, y, g.At(sx, sy))
		}
	}
	return out
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

// wrapOffset converts a peak index on a wraparound correlation surface to
// a signed offset: indices past the midpoint alias to negative shifts.
func wrapOffset(i, n int) int {
	if i > n/2 {
		return i - n
	}
	return i
}

// prepare copies the grid with NaN holes zero-filled and the finite mean
// subtracted, the form the Fourier methods operate on. The returned flag
// is false when the image carries no structure to correlate on: no finite
// samples at all, or a hole-free constant image.
func prepare(g *models.Grid) ([]float64, bool) {
	sum, n := 0.0, 0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if n == 0 {
		return make([]float64, len(g.Data)), false
	}
	mean := sum / float64(n)

	out := make([]float64, len(g.Data))
	for i, v := range g.Data {
		if math.IsNaN(v) {
			out[i] = 0
			continue
		}
		out[i] = v - mean
	}
	return out, lo != hi || n < len(g.Data)
}

func checkShapes(moving, ref *models.Grid) error {
	if !moving.SameShape(ref) {
		return fmt.Errorf("register: shape mismatch %dx%d vs %dx%d",
			moving.Width, moving.Height, ref.Width, ref.Height)
	}
	if moving.Width < 2 || moving.Height < 2 {
		return fmt.Errorf("register: image %dx%d too small to register",
			moving.Width, moving.Height)
	}
	return nil
}
