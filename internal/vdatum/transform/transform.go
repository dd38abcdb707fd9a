// Package transform applies vertical datum pipelines to point batches. A
// Transformer pairs the loaded region registry with a grid-shift backend;
// each call resolves a region per point, builds the source-to-destination
// pipeline through the pivot, applies it, and combines per-step
// uncertainties in quadrature.
package transform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/coastalmapping/vdatum/internal/vdatum/geo"
	"github.com/coastalmapping/vdatum/internal/vdatum/gridshift"
	"github.com/coastalmapping/vdatum/internal/vdatum/pipeline"
	"github.com/coastalmapping/vdatum/internal/vdatum/registry"
	"github.com/coastalmapping/vdatum/internal/vdatum/vcrs"
)

// DefaultHorizontalEPSG is the horizontal reference assumed for inputs when
// the caller does not say otherwise.
const DefaultHorizontalEPSG = 6318

// Result is the outcome for one point. Uncertainty is NaN when the point
// was passed through out of coverage; InCoverage distinguishes the cases.
type Result struct {
	X, Y, Z     float64
	Uncertainty float64
	Region      string
	InCoverage  bool
}

// Batch is a whole transformation call's output: positional results plus the
// compound reference system describing how they were derived.
type Batch struct {
	Results []Result
	CRS     vcrs.CompoundCRS
}

// Options tune one TransformPoints call.
type Options struct {
	// ForceInputVerticalDatum overrides the source spec without touching
	// region selection.
	ForceInputVerticalDatum *pipeline.Spec
	// AllowPointsOutsideCoverage passes out-of-coverage points through
	// unchanged instead of failing the whole call.
	AllowPointsOutsideCoverage bool
	// HorizontalEPSG is recorded in the output descriptor. Zero means
	// DefaultHorizontalEPSG.
	HorizontalEPSG int
	// Workers caps the transform worker pool. Zero means GOMAXPROCS.
	Workers int
}

// Transformer holds what a transformation call needs: the immutable registry
// and the grid-shift backend. Safe for concurrent use.
type Transformer struct {
	reg     *registry.Registry
	shifter gridshift.Shifter
}

func New(reg *registry.Registry, shifter gridshift.Shifter) *Transformer {
	return &Transformer{reg: reg, shifter: shifter}
}

// regionPlan is the per-region work shared by all points selected into that
// region: the built pipeline, validated against the distribution once.
type regionPlan struct {
	info     *pipeline.RegionInfo
	pipeline pipeline.Pipeline
}

// TransformPoints converts the vertical component of each (x, y, z) from
// source to destination. Inputs are parallel slices; zs may be nil for
// all-zero heights. Results are positional: Results[i] corresponds to input
// i regardless of worker completion order.
func (t *Transformer) TransformPoints(ctx context.Context, source, destination pipeline.Spec, xs, ys, zs []float64, opts Options) (*Batch, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("got %d x values but %d y values", len(xs), len(ys))
	}
	if zs == nil {
		zs = make([]float64, len(xs))
	}
	if len(zs) != len(xs) {
		return nil, fmt.Errorf("got %d coordinates but %d z values", len(xs), len(zs))
	}
	if opts.ForceInputVerticalDatum != nil {
		source = *opts.ForceInputVerticalDatum
	}
	horizontal := opts.HorizontalEPSG
	if horizontal == 0 {
		horizontal = DefaultHorizontalEPSG
	}

	points := make([]geo.Point, len(xs))
	for i := range xs {
		points[i] = geo.Point{X: xs[i], Y: ys[i]}
	}
	selections := t.reg.Select(points)

	if !opts.AllowPointsOutsideCoverage {
		var outside []geo.Point
		for i, sel := range selections {
			if !sel.InCoverage {
				outside = append(outside, points[i])
			}
		}
		if len(outside) > 0 {
			return nil, &CoverageError{Points: outside}
		}
	}

	// one pipeline per distinct region, built and validated up front so a
	// bad datum/region combination fails before any point is touched
	plans := make(map[string]*regionPlan)
	var used []vcrs.RegionPipeline
	for _, rg := range t.reg.SelectedRegions(selections) {
		info := rg.Info()
		p, err := pipeline.Build(source, destination, info)
		if err != nil {
			return nil, err
		}
		if err := t.reg.ValidateSteps(p.Steps); err != nil {
			return nil, err
		}
		plans[rg.ID] = &regionPlan{info: info, pipeline: p}
		used = append(used, vcrs.RegionPipeline{RegionID: rg.ID, Pipeline: p})
	}

	results := make([]Result, len(xs))
	if err := t.applyAll(ctx, selections, plans, opts, xs, ys, zs, results); err != nil {
		return nil, err
	}

	return &Batch{
		Results: results,
		CRS:     vcrs.Describe(horizontal, t.reg.Version(), destination, used),
	}, nil
}

// applyAll fans the per-point work across a worker pool. Points are
// independent, so workers share nothing but the read-only registry and the
// grid cache.
func (t *Transformer) applyAll(ctx context.Context, selections []registry.Selection, plans map[string]*regionPlan, opts Options, xs, ys, zs []float64, results []Result) error {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(xs) {
		workers = len(xs)
	}
	if workers < 1 {
		workers = 1
	}

	indexes := make(chan int)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				res, err := t.applyOne(selections[i], plans, opts.AllowPointsOutsideCoverage, xs[i], ys[i], zs[i])
				if err != nil {
					errs <- err
					return
				}
				results[i] = res
			}
		}()
	}

feed:
	for i := range xs {
		select {
		case indexes <- i:
		case <-ctx.Done():
			break feed
		case err := <-errs:
			close(indexes)
			wg.Wait()
			return err
		}
	}
	close(indexes)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// applyOne runs a single point through its region's pipeline. Out-of-coverage
// points (no region, or a footprint hit whose grids have no data here) pass
// through unchanged with NaN uncertainty.
func (t *Transformer) applyOne(sel registry.Selection, plans map[string]*regionPlan, allowOutside bool, x, y, z float64) (Result, error) {
	passthrough := Result{X: x, Y: y, Z: z, Uncertainty: math.NaN()}
	if !sel.InCoverage {
		return passthrough, nil
	}
	plan := plans[sel.RegionID]

	uncs := make([]float64, 0, len(plan.pipeline.Steps))
	out := z
	for _, step := range plan.pipeline.Steps {
		v, err := t.shifter.Shift(step.GridRef, x, y)
		if errors.Is(err, gridshift.ErrOutsideGrid) {
			// inside the footprint but over a grid hole: same policy as
			// out-of-coverage
			if !allowOutside {
				return Result{}, &CoverageError{Points: []geo.Point{{X: x, Y: y}}}
			}
			return passthrough, nil
		}
		if err != nil {
			return Result{}, &PipelineApplicationError{GridRef: step.GridRef, X: x, Y: y, Err: err}
		}
		switch step.Direction {
		case pipeline.Forward:
			out += v
		case pipeline.Inverse:
			out -= v
		}
		uncs = append(uncs, step.Uncertainty)
	}

	return Result{
		X:           x,
		Y:           y,
		Z:           out,
		Uncertainty: floats.Norm(uncs, 2),
		Region:      sel.RegionID,
		InCoverage:  true,
	}, nil
}
