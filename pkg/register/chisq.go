package register

import (
	"fmt"
	"math"

	"cubealign/internal/models"
)

// ChiSquared estimates the shift minimizing the chi-squared statistic
// between the rolled moving image and the reference over their finite
// overlap. The integer minimum of a bounded grid search is refined to
// fractional precision with a parabolic fit, and 1-sigma uncertainties
// are derived from the local curvature of the chi-squared surface.
type ChiSquared struct {
	// MaxShift bounds the search window in pixels per axis. Zero selects
	// a quarter of the smaller image dimension.
	MaxShift int
}

// Name implements Method.
func (*ChiSquared) Name() string { return "chi2" }

// Estimate implements Method.
func (c *ChiSquared) Estimate(moving, ref *models.Grid) (Shift, error) {
	if err := checkShapes(moving, ref); err != nil {
		return Shift{}, err
	}

	w, h := moving.Width, moving.Height
	max := c.MaxShift
	if max <= 0 {
		max = min(w, h) / 4
	}
	if max < 1 {
		max = 1
	}

	bestDy, bestDx := 0, 0
	bestChi := math.Inf(1)
	found := false
	for dy := -max; dy <= max; dy++ {
		for dx := -max; dx <= max; dx++ {
			chi, n := chi2(moving, ref, dy, dx)
			if n == 0 {
				continue
			}
			found = true
			if chi < bestChi {
				bestChi = chi
				bestDy, bestDx = dy, dx
			}
		}
	}
	if !found {
		return Shift{}, fmt.Errorf("register: chi-squared search found no finite overlap")
	}

	// Refine each axis with the two neighboring samples of the surface.
	cy0, _ := chi2(moving, ref, bestDy-1, bestDx)
	cy2, _ := chi2(moving, ref, bestDy+1, bestDx)
	cx0, _ := chi2(moving, ref, bestDy, bestDx-1)
	cx2, _ := chi2(moving, ref, bestDy, bestDx+1)

	fy, ey := refine(cy0, bestChi, cy2)
	fx, ex := refine(cx0, bestChi, cx2)

	return Shift{
		Dy:    float64(bestDy) + fy,
		Dx:    float64(bestDx) + fx,
		ErrDy: ey,
		ErrDx: ex,
	}, nil
}

// chi2 evaluates the chi-squared statistic for hypothesis shift (dy, dx):
// the sum of squared residuals between moving rolled back by the shift and
// the reference, over pixels where both are finite. Access wraps around,
// matching the circular shift primitive used downstream.
func chi2(moving, ref *models.Grid, dy, dx int) (float64, int) {
	w, h := ref.Width, ref.Height
	sum := 0.0
	n := 0
	for y := 0; y < h; y++ {
		my := mod(y+dy, h)
		for x := 0; x < w; x++ {
			mx := mod(x+dx, w)
			a := moving.At(mx, my)
			b := ref.At(x, y)
			if math.IsNaN(a) || math.IsNaN(b) {
				continue
			}
			d := a - b
			sum += d * d
			n++
		}
	}
	return sum, n
}

// refine fits a parabola through three samples bracketing the minimum and
// returns the fractional offset of the vertex plus a curvature-based
// uncertainty. Degenerate (flat) brackets return no refinement.
func refine(c0, c1, c2 float64) (frac, sigma float64) {
	den := c0 - 2*c1 + c2
	if den <= 0 {
		return 0, 0
	}
	frac = 0.5 * (c0 - c2) / den
	if frac > 0.5 {
		frac = 0.5
	} else if frac < -0.5 {
		frac = -0.5
	}
	sigma = math.Sqrt(2 / den)
	return frac, sigma
}
