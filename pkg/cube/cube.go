// Package cube loads IFU spectral data cubes from FITS resources and
// extracts single-wavelength 2D slices with their celestial WCS.
package cube

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"

	"github.com/astrogo/fitsio"

	"cubealign/internal/models"
	"cubealign/pkg/wcs"
)

// LoadError reports a cube resource that could not be fetched, parsed,
// or that lacks the expected 3-axis cube structure.
type LoadError struct {
	Resource string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cube: loading %s: %v", e.Resource, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IndexError reports a wavelength index outside the cube's spectral axis.
type IndexError struct {
	Index int
	NWave int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("cube: wavelength index %d out of range [0, %d)", e.Index, e.NWave)
}

// Cube is an immutable spectral data cube: a wavelength * y * x array
// loaded from a FITS image extension, with its WCS. The zero value is
// not usable; cubes are created with Load.
type Cube struct {
	resource string
	data     []float64 // nwave planes of height*width samples, x fastest
	width    int
	height   int
	nwave    int
	wcs      *wcs.Cube
}

// Load opens a spectral cube from a local path or an http(s) URL. The
// first image HDU with three axes is used. Remote fetches honor ctx.
func Load(ctx context.Context, resource string) (*Cube, error) {
	raw, err := fetch(ctx, resource)
	if err != nil {
		return nil, &LoadError{Resource: resource, Err: err}
	}

	f, err := fitsio.Open(bytes.NewReader(raw))
	if err != nil {
		return nil, &LoadError{Resource: resource, Err: err}
	}
	defer f.Close()

	for _, hdu := range f.HDUs() {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		axes := img.Header().Axes()
		if len(axes) != 3 {
			continue
		}
		c, err := fromImage(resource, img, axes)
		if err != nil {
			return nil, &LoadError{Resource: resource, Err: err}
		}
		return c, nil
	}

	return nil, &LoadError{Resource: resource, Err: fmt.Errorf("no 3-axis image HDU found")}
}

func fromImage(resource string, img fitsio.Image, axes []int) (*Cube, error) {
	width, height, nwave := axes[0], axes[1], axes[2]
	if width <= 0 || height <= 0 || nwave <= 0 {
		return nil, fmt.Errorf("degenerate cube dimensions %dx%dx%d", width, height, nwave)
	}

	hdr := img.Header()
	w, err := wcs.ParseCube(hdr)
	if err != nil {
		return nil, err
	}

	data, err := readPixels(img, width*height*nwave)
	if err != nil {
		return nil, err
	}

	return &Cube{
		resource: resource,
		data:     data,
		width:    width,
		height:   height,
		nwave:    nwave,
		wcs:      w,
	}, nil
}

// readPixels decodes the HDU data array into float64 samples, applying
// BSCALE/BZERO and mapping BLANK integer samples to NaN.
func readPixels(img fitsio.Image, n int) ([]float64, error) {
	hdr := img.Header()
	bscale := headerFloat(hdr, "BSCALE", 1)
	bzero := headerFloat(hdr, "BZERO", 0)
	blank, hasBlank := headerInt(hdr, "BLANK")

	out := make([]float64, n)

	switch hdr.Bitpix() {
	case 8:
		raw := make([]uint8, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = scaled(float64(v), int64(v), bscale, bzero, blank, hasBlank)
		}
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = scaled(float64(v), int64(v), bscale, bzero, blank, hasBlank)
		}
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = scaled(float64(v), int64(v), bscale, bzero, blank, hasBlank)
		}
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = scaled(float64(v), v, bscale, bzero, blank, hasBlank)
		}
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = bzero + bscale*float64(v)
		}
	case -64:
		raw := make([]float64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = bzero + bscale*v
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", hdr.Bitpix())
	}

	return out, nil
}

func scaled(v float64, iv int64, bscale, bzero float64, blank int64, hasBlank bool) float64 {
	if hasBlank && iv == blank {
		return math.NaN()
	}
	return bzero + bscale*v
}

// Resource returns the path or URL the cube was loaded from.
func (c *Cube) Resource() string { return c.resource }

// Width returns the spatial x extent in pixels.
func (c *Cube) Width() int { return c.width }

// Height returns the spatial y extent in pixels.
func (c *Cube) Height() int { return c.height }

// NWave returns the length of the wavelength axis.
func (c *Cube) NWave() int { return c.nwave }

// WCS returns the full 3-axis WCS of the cube.
func (c *Cube) WCS() *wcs.Cube { return c.wcs }

// MidPlane returns the default wavelength index, the middle of the axis.
func (c *Cube) MidPlane() int { return c.nwave / 2 }

// Slice extracts the 2D image at wavelength index i together with the
// celestial WCS shared by every plane of the cube. The returned grid is
// a copy; the cube itself is never mutated.
func (c *Cube) Slice(i int) (*models.Grid, *wcs.Celestial, error) {
	if i < 0 || i >= c.nwave {
		return nil, nil, &IndexError{Index: i, NWave: c.nwave}
	}

	g := models.NewGrid(c.width, c.height)
	copy(g.Data, c.data[i*c.width*c.height:(i+1)*c.width*c.height])
	return g, c.wcs.Sky, nil
}

// fetch reads the raw bytes of a local or remote resource. FITS parsing
// needs random access, so remote bodies are buffered in memory.
func fetch(ctx context.Context, resource string) ([]byte, error) {
	if strings.HasPrefix(resource, "http://") || strings.HasPrefix(resource, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resource, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(resource)
}

func headerFloat(hdr *fitsio.Header, name string, def float64) float64 {
	c := hdr.Get(name)
	if c == nil {
		return def
	}
	switch v := c.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func headerInt(hdr *fitsio.Header, name string) (int64, bool) {
	c := hdr.Get(name)
	if c == nil {
		return 0, false
	}
	switch v := c.Value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}
