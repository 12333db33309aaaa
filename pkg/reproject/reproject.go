// Package reproject resamples 2D images from one celestial WCS grid onto
// another using inverse-mapped bilinear interpolation.
package reproject

import (
	"fmt"
	"math"

	"cubealign/internal/models"
	"cubealign/pkg/wcs"
)

// snapEps is the tolerance for treating a source coordinate as landing
// exactly on a pixel center, so that reprojecting a grid onto its own
// WCS reproduces the input bit for bit.
const snapEps = 1e-9

// Interp resamples src from srcWCS onto the dstW x dstH grid of dstWCS.
// It returns the resampled data and a footprint grid holding 1 where the
// output pixel was covered by finite source data and 0 elsewhere.
// Uncovered output pixels are NaN in the data grid.
func Interp(src *models.Grid, srcWCS, dstWCS *wcs.Celestial, dstW, dstH int) (*models.Grid, *models.Grid, error) {
	if src.Width <= 0 || src.Height <= 0 || len(src.Data) != src.Width*src.Height {
		return nil, nil, fmt.Errorf("reproject: malformed source grid")
	}
	if dstW <= 0 || dstH <= 0 {
		return nil, nil, fmt.Errorf("reproject: invalid output shape %dx%d", dstW, dstH)
	}
	if !srcWCS.SameFrame(dstWCS) {
		return nil, nil, fmt.Errorf("reproject: source frame %v does not match target frame %v",
			srcWCS.Ctype, dstWCS.Ctype)
	}

	out := models.NewGrid(dstW, dstH)
	foot := models.NewGrid(dstW, dstH)

	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			ra, dec := dstWCS.PixelToSky(float64(x), float64(y))
			sx, sy := srcWCS.SkyToPixel(ra, dec)

			v, ok := sample(src, sx, sy)
			if ok {
				out.Set(x, y, v)
				foot.Set(x, y, 1)
			} else {
				out.Set(x, y, math.NaN())
			}
		}
	}

	return out, foot, nil
}

// sample evaluates src at the fractional coordinate (sx, sy) by bilinear
// interpolation. Coordinates outside the grid, or interpolations touching
// a NaN sample, report no coverage.
func sample(src *models.Grid, sx, sy float64) (float64, bool) {
	if math.IsNaN(sx) || math.IsNaN(sy) {
		return 0, false
	}

	// Snap to the nearest pixel center when the mapping is (numerically)
	// the identity, so edge pixels keep full coverage.
	rx, ry := math.Round(sx), math.Round(sy)
	if math.Abs(sx-rx) < snapEps && math.Abs(sy-ry) < snapEps {
		ix, iy := int(rx), int(ry)
		if ix < 0 || ix >= src.Width || iy < 0 || iy >= src.Height {
			return 0, false
		}
		v := src.At(ix, iy)
		if math.IsNaN(v) {
			return 0, false
		}
		return v, true
	}

	x0 := int(math.Floor(sx))
	y0 := int(math.Floor(sy))
	if x0 < 0 || x0+1 >= src.Width || y0 < 0 || y0+1 >= src.Height {
		return 0, false
	}

	fx := sx - float64(x0)
	fy := sy - float64(y0)

	v00 := src.At(x0, y0)
	v10 := src.At(x0+1, y0)
	v01 := src.At(x0, y0+1)
	v11 := src.At(x0+1, y0+1)
	if math.IsNaN(v00) || math.IsNaN(v10) || math.IsNaN(v01) || math.IsNaN(v11) {
		return 0, false
	}

	top := v00*(1-fx) + v10*fx
	bot := v01*(1-fx) + v11*fx
	return top*(1-fy) + bot*fy, true
}
