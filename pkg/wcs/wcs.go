// Package wcs implements the World Coordinate System metadata attached to
// FITS spectral cubes: the mapping between pixel indices and sky/wavelength
// coordinates. Only the gnomonic (TAN) celestial projection is supported,
// which covers the IFU cubes this module aligns.
package wcs

import (
	"fmt"
	"math"

	"github.com/astrogo/fitsio"
	"gonum.org/v1/gonum/mat"
)

// Celestial maps between zero-based spatial pixel coordinates and
// (RA, Dec) sky coordinates in degrees using a TAN projection.
type Celestial struct {
	// Crpix is the FITS reference pixel (1-based, x then y).
	Crpix [2]float64

	// Crval is the sky coordinate at the reference pixel, in degrees.
	Crval [2]float64

	// Ctype names the axis types, e.g. "RA---TAN", "DEC--TAN".
	Ctype [2]string

	// cd is the 2x2 linear transform from pixel offsets to intermediate
	// world coordinates in degrees per pixel; inv is its inverse.
	cd  *mat.Dense
	inv *mat.Dense
}

// Spectral maps between a wavelength plane index and a physical wavelength.
// The spectral axis of IFU cubes is linear.
type Spectral struct {
	Crpix float64 // 1-based reference plane
	Crval float64 // wavelength at the reference plane
	Cdelt float64 // wavelength step per plane
	Ctype string
	Cunit string
}

// Cube is the full 3-axis WCS of a spectral cube: two celestial axes
// plus one spectral axis.
type Cube struct {
	Sky  *Celestial
	Wave *Spectral
}

// NewCelestial builds a celestial WCS from the reference pixel (1-based),
// the reference sky coordinate in degrees, and the row-major CD matrix
// {CD1_1, CD1_2, CD2_1, CD2_2} in degrees per pixel. A singular CD matrix
// is rejected since the inverse mapping would be undefined.
func NewCelestial(crpix, crval [2]float64, cd [4]float64) (*Celestial, error) {
	m := mat.NewDense(2, 2, []float64{cd[0], cd[1], cd[2], cd[3]})
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("wcs: singular CD matrix: %w", err)
	}
	return &Celestial{
		Crpix: crpix,
		Crval: crval,
		Ctype: [2]string{"RA---TAN", "DEC--TAN"},
		cd:    m,
		inv:   &inv,
	}, nil
}

// CD returns the row-major CD matrix elements in degrees per pixel.
func (c *Celestial) CD() [4]float64 {
	return [4]float64{c.cd.At(0, 0), c.cd.At(0, 1), c.cd.At(1, 0), c.cd.At(1, 1)}
}

// SameFrame reports whether two celestial WCS describe the same coordinate
// reference frame, the precondition for reprojecting one grid onto the other.
func (c *Celestial) SameFrame(o *Celestial) bool {
	return c.Ctype == o.Ctype
}

// PixelToSky converts zero-based pixel coordinates to (RA, Dec) in degrees.
// Fractional pixel coordinates are valid input.
func (c *Celestial) PixelToSky(x, y float64) (ra, dec float64) {
	u := x + 1 - c.Crpix[0]
	v := y + 1 - c.Crpix[1]
	xi := (c.cd.At(0, 0)*u + c.cd.At(0, 1)*v) * deg2rad
	eta := (c.cd.At(1, 0)*u + c.cd.At(1, 1)*v) * deg2rad

	ra0 := c.Crval[0] * deg2rad
	dec0 := c.Crval[1] * deg2rad

	r := math.Hypot(xi, eta)
	if r == 0 {
		return c.Crval[0], c.Crval[1]
	}

	// Inverse gnomonic projection about the tangent point.
	cc := math.Atan(r)
	sinc, cosc := math.Sin(cc), math.Cos(cc)
	dec = math.Asin(cosc*math.Sin(dec0) + eta*sinc*math.Cos(dec0)/r)
	ra = ra0 + math.Atan2(xi*sinc, r*math.Cos(dec0)*cosc-eta*math.Sin(dec0)*sinc)

	ra *= rad2deg
	dec *= rad2deg
	if ra < 0 {
		ra += 360
	} else if ra >= 360 {
		ra -= 360
	}
	return ra, dec
}

// SkyToPixel converts (RA, Dec) in degrees to zero-based pixel coordinates.
// Coordinates on the far hemisphere of the tangent point have no gnomonic
// image; they map to non-finite pixel coordinates which callers treat as
// outside the grid.
func (c *Celestial) SkyToPixel(ra, dec float64) (x, y float64) {
	raR := ra * deg2rad
	decR := dec * deg2rad
	ra0 := c.Crval[0] * deg2rad
	dec0 := c.Crval[1] * deg2rad

	cosc := math.Sin(dec0)*math.Sin(decR) + math.Cos(dec0)*math.Cos(decR)*math.Cos(raR-ra0)
	if cosc <= 0 {
		return math.NaN(), math.NaN()
	}

	xi := math.Cos(decR) * math.Sin(raR-ra0) / cosc
	eta := (math.Cos(dec0)*math.Sin(decR) - math.Sin(dec0)*math.Cos(decR)*math.Cos(raR-ra0)) / cosc

	xi *= rad2deg
	eta *= rad2deg
	u := c.inv.At(0, 0)*xi + c.inv.At(0, 1)*eta
	v := c.inv.At(1, 0)*xi + c.inv.At(1, 1)*eta
	return u + c.Crpix[0] - 1, v + c.Crpix[1] - 1
}

// Wavelength returns the physical wavelength of the zero-based plane index.
func (s *Spectral) Wavelength(i int) float64 {
	return s.Crval + (float64(i)+1-s.Crpix)*s.Cdelt
}

// ParseCube extracts the 3-axis WCS from a FITS cube header. The first two
// axes must be celestial, the third spectral, the axis order produced by
// standard IFU pipelines. Missing CD cards fall back to PC*CDELT, then to
// a diagonal CDELT matrix.
func ParseCube(hdr *fitsio.Header) (*Cube, error) {
	ctype1 := cardString(hdr, "CTYPE1", "RA---TAN")
	ctype2 := cardString(hdr, "CTYPE2", "DEC--TAN")

	crpix := [2]float64{
		cardFloat(hdr, "CRPIX1", 1),
		cardFloat(hdr, "CRPIX2", 1),
	}
	crval := [2]float64{
		cardFloat(hdr, "CRVAL1", 0),
		cardFloat(hdr, "CRVAL2", 0),
	}

	cd, err := linearMatrix(hdr)
	if err != nil {
		return nil, err
	}

	sky, err := NewCelestial(crpix, crval, cd)
	if err != nil {
		return nil, err
	}
	sky.Ctype = [2]string{ctype1, ctype2}

	wave := &Spectral{
		Crpix: cardFloat(hdr, "CRPIX3", 1),
		Crval: cardFloat(hdr, "CRVAL3", 0),
		Cdelt: cardFloat(hdr, "CDELT3", 1),
		Ctype: cardString(hdr, "CTYPE3", "WAVE"),
		Cunit: cardString(hdr, "CUNIT3", ""),
	}
	if c := hdr.Get("CD3_3"); c != nil {
		wave.Cdelt = toFloat(c.Value, wave.Cdelt)
	}

	return &Cube{Sky: sky, Wave: wave}, nil
}

// linearMatrix resolves the celestial linear transform from CDi_j cards,
// falling back to PCi_j scaled by CDELT, then to plain CDELT.
func linearMatrix(hdr *fitsio.Header) ([4]float64, error) {
	if hdr.Get("CD1_1") != nil {
		return [4]float64{
			cardFloat(hdr, "CD1_1", 0),
			cardFloat(hdr, "CD1_2", 0),
			cardFloat(hdr, "CD2_1", 0),
			cardFloat(hdr, "CD2_2", 0),
		}, nil
	}

	cdelt1 := cardFloat(hdr, "CDELT1", math.NaN())
	cdelt2 := cardFloat(hdr, "CDELT2", math.NaN())
	if math.IsNaN(cdelt1) || math.IsNaN(cdelt2) {
		return [4]float64{}, fmt.Errorf("wcs: header has neither CD matrix nor CDELT scales")
	}

	pc := [4]float64{1, 0, 0, 1}
	if hdr.Get("PC1_1") != nil {
		pc = [4]float64{
			cardFloat(hdr, "PC1_1", 1),
			cardFloat(hdr, "PC1_2", 0),
			cardFloat(hdr, "PC2_1", 0),
			cardFloat(hdr, "PC2_2", 1),
		}
	}

	return [4]float64{
		cdelt1 * pc[0], cdelt1 * pc[1],
		cdelt2 * pc[2], cdelt2 * pc[3],
	}, nil
}

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

func cardFloat(hdr *fitsio.Header, name string, def float64) float64 {
	c := hdr.Get(name)
	if c == nil {
		return def
	}
	return toFloat(c.Value, def)
}

func cardString(hdr *fitsio.Header, name, def string) string {
	c := hdr.Get(name)
	if c == nil {
		return def
	}
	if s, ok := c.Value.(string); ok {
		return s
	}
	return def
}

func toFloat(v interface{}, def float64) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return def
	}
}
