// Package pipeline orchestrates the alignment of dithered IFU exposures:
// load the cubes, extract one wavelength slice from each, reproject onto
// the reference WCS, estimate and apply the residual shift with each
// registration method, and co-add the aligned slices.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/rs/zerolog"

	"cubealign/internal/models"
	"cubealign/pkg/cube"
	"cubealign/pkg/register"
	"cubealign/pkg/reproject"
	"cubealign/pkg/render"
	"cubealign/pkg/wcs"
)

// fracFlag is the fractional shift remainder above which the pipeline
// warns that integer application is discarding sub-pixel precision.
const fracFlag = 0.05

// Params configures an alignment run.
type Params struct {
	// Inputs are the cube resources; the first is the reference exposure
	// and is never reprojected or shifted.
	Inputs []string

	// SliceIndex is the wavelength plane compared across exposures.
	// Negative selects the middle plane of the reference cube.
	SliceIndex int

	// Methods names the registration strategies to run.
	Methods []string

	// MaxShift bounds the chi-squared search window (0 = automatic).
	MaxShift int

	// OutputDir receives the rendered panels when RenderPanels is set.
	OutputDir    string
	RenderPanels bool
}

// MethodResult holds the per-strategy outcome: the estimated shifts for
// each non-reference exposure, the registered slices, and their co-add.
type MethodResult struct {
	Name       string
	Shifts     []register.Shift
	Registered []*models.Grid
	CoAdd      *models.Grid
}

// Result carries every intermediate artifact of a run, so callers can
// inspect or compare stages without re-running the pipeline.
type Result struct {
	SliceIndex  int
	Slices      []*models.Grid // raw slice per input
	Reference   *models.Grid   // Slices[0]
	Reprojected []*models.Grid // inputs 1..n-1 on the reference grid
	Footprints  []*models.Grid
	Methods     []MethodResult
}

// Pipeline runs the alignment stages in order. A failure in any stage
// aborts the whole run; there are no retries.
type Pipeline struct {
	params   *Params
	log      zerolog.Logger
	renderer *render.Renderer
}

// New creates a pipeline with the provided parameters, logger, and panel
// renderer. The renderer may be nil when RenderPanels is false.
func New(params *Params, log zerolog.Logger, renderer *render.Renderer) *Pipeline {
	if renderer == nil {
		renderer = render.New()
	}
	return &Pipeline{params: params, log: log, renderer: renderer}
}

// Run executes the full alignment pipeline.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if len(p.params.Inputs) < 2 {
		return nil, fmt.Errorf("pipeline: need at least 2 input cubes, got %d", len(p.params.Inputs))
	}

	// Stage 1: load all cubes.
	p.log.Info().Int("cubes", len(p.params.Inputs)).Msg("loading input cubes")
	cubes, err := p.loadCubes(ctx)
	if err != nil {
		return nil, err
	}

	// Stage 2: extract one wavelength slice from each cube.
	idx := p.params.SliceIndex
	if idx < 0 {
		idx = cubes[0].MidPlane()
	}
	p.log.Info().Int("plane", idx).Msg("extracting wavelength slices")

	res := &Result{SliceIndex: idx}
	skies := make([]*wcs.Celestial, len(cubes))
	for i, c := range cubes {
		g, sky, err := c.Slice(idx)
		if err != nil {
			return nil, fmt.Errorf("pipeline: slicing %s: %w", c.Resource(), err)
		}
		if i > 0 && !sky.SameFrame(skies[0]) {
			return nil, fmt.Errorf("pipeline: %s is not in the reference coordinate frame", c.Resource())
		}
		res.Slices = append(res.Slices, g)
		skies[i] = sky
	}
	res.Reference = res.Slices[0]

	if err := p.savePanels("01_raw", "raw", 1, res.Slices); err != nil {
		return nil, err
	}

	// Stage 3: reproject every non-reference slice onto the reference WCS.
	p.log.Info().Msg("reprojecting onto reference WCS")
	ref := res.Reference
	for i := 1; i < len(res.Slices); i++ {
		out, foot, err := reproject.Interp(res.Slices[i], skies[i], skies[0], ref.Width, ref.Height)
		if err != nil {
			return nil, fmt.Errorf("pipeline: reprojecting %s: %w", cubes[i].Resource(), err)
		}
		res.Reprojected = append(res.Reprojected, out)
		res.Footprints = append(res.Footprints, foot)
	}

	if err := p.savePanels("02_reprojected", "reprojected", 2, res.Reprojected); err != nil {
		return nil, err
	}

	// Stage 4: per registration method, estimate, apply, and co-add.
	methods, err := register.Methods(p.params.Methods)
	if err != nil {
		return nil, err
	}
	for _, m := range methods {
		if c, ok := m.(*register.ChiSquared); ok {
			c.MaxShift = p.params.MaxShift
		}
		mr, err := p.runMethod(m, res)
		if err != nil {
			return nil, err
		}
		res.Methods = append(res.Methods, *mr)
	}

	p.log.Info().Msg("alignment complete")
	return res, nil
}

// loadCubes fetches and parses all inputs concurrently, preserving the
// input order in the returned slice.
func (p *Pipeline) loadCubes(ctx context.Context) ([]*cube.Cube, error) {
	type loaded struct {
		idx int
		c   *cube.Cube
		err error
	}
	ch := make(chan loaded)

	for i, resource := range p.params.Inputs {
		go func(i int, resource string) {
			c, err := cube.Load(ctx, resource)
			ch <- loaded{idx: i, c: c, err: err}
		}(i, resource)
	}

	cubes := make([]*cube.Cube, len(p.params.Inputs))
	var firstErr error
	for range p.params.Inputs {
		l := <-ch
		if l.err != nil {
			if firstErr == nil {
				firstErr = l.err
			}
			continue
		}
		cubes[l.idx] = l.c
		p.log.Debug().
			Str("resource", l.c.Resource()).
			Int("width", l.c.Width()).
			Int("height", l.c.Height()).
			Int("planes", l.c.NWave()).
			Msg("cube loaded")
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return cubes, nil
}

// runMethod estimates the shift of each reprojected slice against the
// reference, applies it as an integer wraparound roll, and co-adds.
func (p *Pipeline) runMethod(m register.Method, res *Result) (*MethodResult, error) {
	p.log.Info().Str("method", m.Name()).Msg("registering")

	mr := &MethodResult{Name: m.Name()}
	for i, moving := range res.Reprojected {
		s, err := m.Estimate(moving, res.Reference)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %s on exposure %d: %w", m.Name(), i+1, err)
		}

		// The circular shift takes whole pixels: the estimate is rounded
		// to the nearest integer, and the discarded remainder is surfaced
		// instead of dropped silently. Rounding, not truncation, so an
		// estimate a hair under an exact integer still lands on it.
		dy, dx := int(math.Round(s.Dy)), int(math.Round(s.Dx))
		if fy, fx := math.Abs(s.Dy-float64(dy)), math.Abs(s.Dx-float64(dx)); fy > fracFlag || fx > fracFlag {
			p.log.Warn().
				Str("method", m.Name()).
				Int("exposure", i+1).
				Float64("fracDy", s.Dy-float64(dy)).
				Float64("fracDx", s.Dx-float64(dx)).
				Msg("sub-pixel precision discarded by integer shift")
		}

		p.log.Info().
			Str("method", m.Name()).
			Int("exposure", i+1).
			Float64("dy", s.Dy).
			Float64("dx", s.Dx).
			Msg("estimated shift")

		mr.Shifts = append(mr.Shifts, s)
		mr.Registered = append(mr.Registered, register.Roll(moving, -dy, -dx))
	}

	mr.CoAdd = coAdd(res.Reference, mr.Registered)

	stage := "03_registered_" + mr.Name
	if err := p.savePanels(stage, mr.Name, 2, mr.Registered); err != nil {
		return nil, err
	}
	if p.params.RenderPanels {
		path := filepath.Join(p.params.OutputDir, "04_coadd", mr.Name+".png")
		title := fmt.Sprintf("Co-add (%s)", mr.Name)
		if err := p.renderer.Save(mr.CoAdd, title, path); err != nil {
			return nil, err
		}
	}
	return mr, nil
}

// coAdd sums the reference with the aligned slices. NaN pixels contribute
// nothing, so footprint holes do not poison the sum.
func coAdd(ref *models.Grid, aligned []*models.Grid) *models.Grid {
	out := models.NewGrid(ref.Width, ref.Height)
	add := func(g *models.Grid) {
		for i, v := range g.Data {
			if !math.IsNaN(v) {
				out.Data[i] += v
			}
		}
	}
	add(ref)
	for _, g := range aligned {
		add(g)
	}
	return out
}

// savePanels renders one panel per grid; first is the sequence number of
// the first grid, so reprojected stages keep their original numbering.
func (p *Pipeline) savePanels(stage, label string, first int, grids []*models.Grid) error {
	if !p.params.RenderPanels {
		return nil
	}
	for i, g := range grids {
		seq := first + i
		path := filepath.Join(p.params.OutputDir, stage, fmt.Sprintf("seq_%d.png", seq))
		title := fmt.Sprintf("Sequence %d (%s)", seq, label)
		if err := p.renderer.Save(g, title, path); err != nil {
			return err
		}
	}
	return nil
}
