package register

import (
	"fmt"
	"math"

	"cubealign/internal/models"
)

// SubPixel estimates a fractional-pixel shift via phase correlation: the
// cross-power spectrum is normalized to unit magnitude so its inverse
// transform concentrates into a sharp peak, whose position is refined to
// sub-pixel precision with a parabolic fit along each axis.
type SubPixel struct{}

// Name implements Method.
func (*SubPixel) Name() string { return "subpixel" }

// Estimate implements Method.
func (*SubPixel) Estimate(moving, ref *models.Grid) (Shift, error) {
	if err := checkShapes(moving, ref); err != nil {
		return Shift{}, err
	}

	m, okM := prepare(moving)
	r, okR := prepare(ref)
	if !okM || !okR {
		return Shift{}, fmt.Errorf("register: phase correlation input has no structure")
	}

	w, h := moving.Width, moving.Height
	fm := fft2(m, w, h)
	fr := fft2(r, w, h)

	spectrum := make([]complex128, len(fm))
	for i := range fm {
		c := fm[i] * conj(fr[i])
		mag := math.Hypot(real(c), imag(c))
		if mag > 0 {
			spectrum[i] = complex(real(c)/mag, imag(c)/mag)
		}
	}
	surface := ifft2(spectrum, w, h)

	peak := argmax(surface)
	py, px := peak/w, peak%w

	// Parabolic refinement with wraparound neighbors along each axis.
	up := surface[mod(py+1, h)*w+px]
	down := surface[mod(py-1, h)*w+px]
	right := surface[py*w+mod(px+1, w)]
	left := surface[py*w+mod(px-1, w)]
	center := surface[peak]

	fy := peakFrac(down, center, up)
	fx := peakFrac(left, center, right)

	return Shift{
		Dy: float64(wrapOffset(py, h)) + fy,
		Dx: float64(wrapOffset(px, w)) + fx,
	}, nil
}

// peakFrac locates the vertex of the parabola through three samples
// around a correlation maximum, clamped to half a pixel.
func peakFrac(c0, c1, c2 float64) float64 {
	den := c0 - 2*c1 + c2
	if den >= 0 {
		return 0
	}
	f := 0.5 * (c0 - c2) / den
	if f > 0.5 {
		f = 0.5
	} else if f < -0.5 {
		f = -0.5
	}
	return f
}
