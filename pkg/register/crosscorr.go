package register

import (
	"fmt"

	"cubealign/internal/models"
)

// CrossCorrelation estimates the shift maximizing the circular
// cross-correlation of the two images, computed in the Fourier domain.
// The estimate is integer-pixel accurate.
type CrossCorrelation struct{}

// Name implements Method.
func (*CrossCorrelation) Name() string { return "crosscorr" }

// Estimate implements Method. If moving equals ref rolled by (sy, sx),
// the correlation surface peaks at (sy, sx) modulo the image size.
func (*CrossCorrelation) Estimate(moving, ref *models.Grid) (Shift, error) {
	if err := checkShapes(moving, ref); err != nil {
		return Shift{}, err
	}

	m, okM := prepare(moving)
	r, okR := prepare(ref)
	if !okM || !okR {
		return Shift{}, fmt.Errorf("register: cross-correlation input has no structure")
	}

	w, h := moving.Width, moving.Height
	fm := fft2(m, w, h)
	fr := fft2(r, w, h)

	cross := make([]complex128, len(fm))
	for i := range fm {
		cross[i] = fm[i] * conj(fr[i])
	}
	cc := ifft2(cross, w, h)

	peak := argmax(cc)
	py, px := peak/w, peak%w
	return Shift{
		Dy: float64(wrapOffset(py, h)),
		Dx: float64(wrapOffset(px, w)),
	}, nil
}

func conj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}
