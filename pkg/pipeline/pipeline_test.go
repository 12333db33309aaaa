package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/rs/zerolog"

	"cubealign/internal/models"
	"cubealign/pkg/cube"
	"cubealign/pkg/register"
)

const (
	testW     = 32
	testH     = 24
	testNWave = 3
)

// testScene builds the Gaussian blob field stored in every test cube
func testScene() *models.Grid {
	g := models.NewGrid(testW, testH)
	blobs := []struct{ cx, cy, amp, sigma float64 }{
		{8, 6, 10, 1.6},
		{20, 15, 7, 1.3},
		{26, 5, 9, 1.8},
		{13, 19, 6, 1.1},
	}
	for y := 0; y < testH; y++ {
		for x := 0; x < testW; x++ {
			v := 0.25
			for _, b := range blobs {
				dx := float64(x) - b.cx
				dy := float64(y) - b.cy
				v += b.amp * math.Exp(-(dx*dx+dy*dy)/(2*b.sigma*b.sigma))
			}
			g.Set(x, y, v)
		}
	}
	return g
}

// writeCube writes a FITS cube whose every plane holds the given scene.
// All test cubes share one WCS; the dither is expressed as a circular
// shift of the scene itself, so alignment can be verified bit-exactly.
func writeCube(t *testing.T, path string, scene *models.Grid, ctype1 string) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	fits, err := fitsio.Create(f)
	if err != nil {
		t.Fatal(err)
	}
	defer fits.Close()

	img := fitsio.NewImage(-32, []int{testW, testH, testNWave})
	defer img.Close()

	cards := []fitsio.Card{
		{Name: "CTYPE1", Value: ctype1},
		{Name: "CTYPE2", Value: "DEC--TAN"},
		{Name: "CTYPE3", Value: "WAVE"},
		{Name: "CRPIX1", Value: 16.0},
		{Name: "CRPIX2", Value: 12.0},
		{Name: "CRPIX3", Value: 1.0},
		{Name: "CRVAL1", Value: 150.125},
		{Name: "CRVAL2", Value: 2.25},
		{Name: "CRVAL3", Value: 4.7e-7},
		{Name: "CD1_1", Value: -2.8e-4},
		{Name: "CD1_2", Value: 0.0},
		{Name: "CD2_1", Value: 0.0},
		{Name: "CD2_2", Value: 2.8e-4},
		{Name: "CDELT3", Value: 1.8e-10},
	}
	if err := img.Header().Append(cards...); err != nil {
		t.Fatal(err)
	}

	data := make([]float32, testW*testH*testNWave)
	for p := 0; p < testNWave; p++ {
		for i, v := range scene.Data {
			data[p*testW*testH+i] = float32(v)
		}
	}
	if err := img.Write(&data); err != nil {
		t.Fatal(err)
	}
	if err := fits.Write(img); err != nil {
		t.Fatal(err)
	}
}

// writeDitheredSet writes a reference cube plus three circularly shifted
// copies and returns their paths with the applied shifts.
func writeDitheredSet(t *testing.T, dir string) ([]string, []struct{ dy, dx int }) {
	t.Helper()

	scene := testScene()
	shifts := []struct{ dy, dx int }{
		{3, -2},
		{-1, 4},
		{2, 2},
	}

	paths := []string{filepath.Join(dir, "seq1.fits")}
	writeCube(t, paths[0], scene, "RA---TAN")

	for i, s := range shifts {
		path := filepath.Join(dir, "seq"+string(rune('2'+i))+".fits")
		writeCube(t, path, register.Roll(scene, s.dy, s.dx), "RA---TAN")
		paths = append(paths, path)
	}
	return paths, shifts
}

func runParams(inputs []string, methods []string) *Params {
	return &Params{
		Inputs:     inputs,
		SliceIndex: -1,
		Methods:    methods,
	}
}

// TestRunAlignsDitheredCopies verifies the whole pipeline on a known
// dither pattern: estimated shifts match, the registered slices equal the
// reference exactly, and the co-add is exactly four times the reference
func TestRunAlignsDitheredCopies(t *testing.T) {
	paths, shifts := writeDitheredSet(t, t.TempDir())

	p := New(runParams(paths, []string{"crosscorr"}), zerolog.Nop(), nil)
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.SliceIndex != testNWave/2 {
		t.Errorf("slice index = %d, want %d", res.SliceIndex, testNWave/2)
	}
	if len(res.Methods) != 1 || res.Methods[0].Name != "crosscorr" {
		t.Fatalf("unexpected method results: %+v", res.Methods)
	}

	mr := res.Methods[0]
	if len(mr.Shifts) != len(shifts) {
		t.Fatalf("got %d shifts, want %d", len(mr.Shifts), len(shifts))
	}
	for i, want := range shifts {
		got := mr.Shifts[i]
		if math.Abs(got.Dy-float64(want.dy)) > 0.25 || math.Abs(got.Dx-float64(want.dx)) > 0.25 {
			t.Errorf("exposure %d shift (%.2f, %.2f), want (%d, %d)",
				i+2, got.Dy, got.Dx, want.dy, want.dx)
		}
	}

	ref := res.Reference
	for i, reg := range mr.Registered {
		for j := range ref.Data {
			if reg.Data[j] != ref.Data[j] {
				t.Fatalf("registered exposure %d differs from reference at pixel %d", i+2, j)
			}
		}
	}

	// Reference plus three aligned copies of itself sums to exactly 4x
	for i, v := range mr.CoAdd.Data {
		if v != 4*ref.Data[i] {
			t.Fatalf("co-add pixel %d = %v, want %v", i, v, 4*ref.Data[i])
		}
	}
}

// TestRunAllMethods verifies each registration strategy restores the
// dithered exposures end to end: shifts within half a pixel, registered
// slices identical to the reference, and an exact 4x co-add. Fractional
// estimates a hair off an exact integer must round onto it rather than
// knock the applied shift off by a whole pixel.
func TestRunAllMethods(t *testing.T) {
	paths, shifts := writeDitheredSet(t, t.TempDir())

	p := New(runParams(paths, []string{"crosscorr", "chi2", "subpixel"}), zerolog.Nop(), nil)
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Methods) != 3 {
		t.Fatalf("got %d method results, want 3", len(res.Methods))
	}
	ref := res.Reference
	for _, mr := range res.Methods {
		for i, want := range shifts {
			got := mr.Shifts[i]
			if math.Abs(got.Dy-float64(want.dy)) > 0.5 || math.Abs(got.Dx-float64(want.dx)) > 0.5 {
				t.Errorf("%s exposure %d shift (%.2f, %.2f), want (%d, %d)",
					mr.Name, i+2, got.Dy, got.Dx, want.dy, want.dx)
			}
		}
		for i, reg := range mr.Registered {
			for j := range ref.Data {
				if reg.Data[j] != ref.Data[j] {
					t.Fatalf("%s registered exposure %d differs from reference at pixel %d",
						mr.Name, i+2, j)
				}
			}
		}
		for i, v := range mr.CoAdd.Data {
			if v != 4*ref.Data[i] {
				t.Fatalf("%s co-add pixel %d = %v, want %v", mr.Name, i, v, 4*ref.Data[i])
			}
		}
	}
}

// TestRunReprojectionFootprints verifies identical pointings yield full
// footprint coverage
func TestRunReprojectionFootprints(t *testing.T) {
	paths, _ := writeDitheredSet(t, t.TempDir())

	p := New(runParams(paths, []string{"crosscorr"}), zerolog.Nop(), nil)
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Footprints) != 3 {
		t.Fatalf("got %d footprints, want 3", len(res.Footprints))
	}
	for i, f := range res.Footprints {
		for j, v := range f.Data {
			if v != 1 {
				t.Fatalf("footprint %d pixel %d = %v, want 1", i, j, v)
			}
		}
	}
}

// TestRunRendersPanels verifies every stage writes its panels
func TestRunRendersPanels(t *testing.T) {
	dir := t.TempDir()
	paths, _ := writeDitheredSet(t, dir)

	outDir := filepath.Join(dir, "panels")
	params := runParams(paths, []string{"crosscorr"})
	params.OutputDir = outDir
	params.RenderPanels = true

	if _, err := New(params, zerolog.Nop(), nil).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	expect := []string{
		filepath.Join(outDir, "01_raw", "seq_1.png"),
		filepath.Join(outDir, "01_raw", "seq_4.png"),
		filepath.Join(outDir, "02_reprojected", "seq_2.png"),
		filepath.Join(outDir, "03_registered_crosscorr", "seq_2.png"),
		filepath.Join(outDir, "04_coadd", "crosscorr.png"),
	}
	for _, path := range expect {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing panel %s: %v", path, err)
		}
	}
}

// TestRunTooFewInputs verifies the minimum input check
func TestRunTooFewInputs(t *testing.T) {
	p := New(runParams([]string{"only.fits"}, []string{"crosscorr"}), zerolog.Nop(), nil)
	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("expected error for a single input")
	}
}

// TestRunMissingResource verifies load failures abort the run
func TestRunMissingResource(t *testing.T) {
	dir := t.TempDir()
	paths, _ := writeDitheredSet(t, dir)
	paths[2] = filepath.Join(dir, "vanished.fits")

	p := New(runParams(paths, []string{"crosscorr"}), zerolog.Nop(), nil)
	_, err := p.Run(context.Background())
	var loadErr *cube.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("error = %v, want LoadError", err)
	}
}

// TestRunBadSliceIndex verifies an out-of-range plane aborts the run
func TestRunBadSliceIndex(t *testing.T) {
	paths, _ := writeDitheredSet(t, t.TempDir())

	params := runParams(paths, []string{"crosscorr"})
	params.SliceIndex = 99

	_, err := New(params, zerolog.Nop(), nil).Run(context.Background())
	var idxErr *cube.IndexError
	if !errors.As(err, &idxErr) {
		t.Fatalf("error = %v, want IndexError", err)
	}
}

// TestRunFrameMismatch verifies mixing coordinate frames aborts the run
func TestRunFrameMismatch(t *testing.T) {
	dir := t.TempDir()
	paths, _ := writeDitheredSet(t, dir)

	alien := filepath.Join(dir, "galactic.fits")
	writeCube(t, alien, testScene(), "GLON-TAN")
	paths[1] = alien

	if _, err := New(runParams(paths, []string{"crosscorr"}), zerolog.Nop(), nil).Run(context.Background()); err == nil {
		t.Fatal("expected error for mismatched frames")
	}
}

// TestRunUnknownMethod verifies unknown method names abort the run
func TestRunUnknownMethod(t *testing.T) {
	paths, _ := writeDitheredSet(t, t.TempDir())

	if _, err := New(runParams(paths, []string{"warp9"}), zerolog.Nop(), nil).Run(context.Background()); err == nil {
		t.Fatal("expected error for unknown method")
	}
}
