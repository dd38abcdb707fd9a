// Package raster drives point transformation over a gridded elevation
// surface. The coordinate lattice is sampled at a configurable resolution,
// the sampled nodes are transformed as points, and the resulting vertical
// separation field is resampled bilinearly back to full raster resolution
// and added to the elevation band. Per-pixel cost therefore scales with the
// node count, not the pixel count, while the separation field stays
// continuous across region boundaries.
package raster

import (
	"context"
	"fmt"
	"math"

	"github.com/coastalmapping/vdatum/internal/vdatum/pipeline"
	"github.com/coastalmapping/vdatum/internal/vdatum/transform"
	"github.com/coastalmapping/vdatum/internal/vdatum/vcrs"
)

// Band names in Transform output, elevation first.
const (
	BandElevation   = "Elevation"
	BandUncertainty = "Uncertainty"
)

// Grid is a single-band georeferenced elevation raster. Values are row-major
// with row 0 at OriginY; DY is negative for north-up rasters. Cell centers
// sit half a pixel in from the origin.
type Grid struct {
	Width, Height    int
	OriginX, OriginY float64
	DX, DY           float64
	NoData           float64
	Elevation        []float64
}

func (g *Grid) isNoData(v float64) bool {
	return math.IsNaN(v) || v == g.NoData
}

// Output is a transformed raster: parallel bands, their names and nodata
// values, and the compound reference system covering every region the
// raster's footprint touched.
type Output struct {
	Bands     [][]float64
	BandNames []string
	NoData    []float64
	CRS       vcrs.CompoundCRS
}

// Options tune one raster transformation.
type Options struct {
	// ResamplingResolution is the separation-field node spacing in CRS
	// units. Zero or negative samples every pixel center directly.
	ResamplingResolution float64
	// AllowPointsOutsideCoverage keeps out-of-coverage pixels at their
	// original elevation with a depth-scaled fallback uncertainty. When
	// false those pixels become nodata in both output bands.
	AllowPointsOutsideCoverage bool
	// HorizontalEPSG is recorded in the output descriptor. Zero means the
	// point transformer default.
	HorizontalEPSG int
}

// Transformer runs rasters through a point transformer.
type Transformer struct {
	points *transform.Transformer
}

func New(points *transform.Transformer) *Transformer {
	return &Transformer{points: points}
}

// separationField is the transformed node lattice in fractional pixel
// space: node (i, j) sits at pixel coordinate (us[i], vs[j]). NaN marks an
// unresolved node.
type separationField struct {
	us, vs   []float64
	sep, unc []float64 // row-major len(vs) x len(us)
}

// Transform converts the grid's elevations from source to destination.
func (t *Transformer) Transform(ctx context.Context, src *Grid, source, destination pipeline.Spec, opts Options) (*Output, error) {
	if src.Width <= 0 || src.Height <= 0 || len(src.Elevation) != src.Width*src.Height {
		return nil, fmt.Errorf("grid is %dx%d but has %d values", src.Width, src.Height, len(src.Elevation))
	}

	elev := make([]float64, len(src.Elevation))
	unc := make([]float64, len(src.Elevation))

	// an empty raster transforms to an empty raster without touching grids
	if src.allNoData() {
		for i := range elev {
			elev[i] = src.NoData
			unc[i] = src.NoData
		}
		batch, err := t.points.TransformPoints(ctx, source, destination, nil, nil, nil,
			transform.Options{HorizontalEPSG: opts.HorizontalEPSG})
		if err != nil {
			return nil, err
		}
		return t.output(elev, unc, src.NoData, batch.CRS), nil
	}

	field, crs, err := t.sampleField(ctx, src, source, destination, opts)
	if err != nil {
		return nil, err
	}

	for row := 0; row < src.Height; row++ {
		for col := 0; col < src.Width; col++ {
			i := row*src.Width + col
			z := src.Elevation[i]
			if src.isNoData(z) {
				elev[i] = src.NoData
				unc[i] = src.NoData
				continue
			}
			sep, sepUnc, ok := field.at(float64(col)+0.5, float64(row)+0.5)
			if !ok {
				if !opts.AllowPointsOutsideCoverage {
					elev[i] = src.NoData
					unc[i] = src.NoData
					continue
				}
				elev[i] = z
				unc[i] = fallbackUncertainty(z)
				continue
			}
			elev[i] = z + sep
			unc[i] = sepUnc
		}
	}
	return t.output(elev, unc, src.NoData, crs), nil
}

func (t *Transformer) output(elev, unc []float64, noData float64, crs vcrs.CompoundCRS) *Output {
	return &Output{
		Bands:     [][]float64{elev, unc},
		BandNames: []string{BandElevation, BandUncertainty},
		NoData:    []float64{noData, noData},
		CRS:       crs,
	}
}

func (g *Grid) allNoData() bool {
	for _, v := range g.Elevation {
		if !g.isNoData(v) {
			return false
		}
	}
	return true
}

// sampleField transforms the node lattice. Nodes are always allowed to fall
// outside coverage; the per-pixel pass decides whether that is tolerable.
func (t *Transformer) sampleField(ctx context.Context, src *Grid, source, destination pipeline.Spec, opts Options) (*separationField, vcrs.CompoundCRS, error) {
	us := nodeAxis(src.Width, src.DX, opts.ResamplingResolution)
	vs := nodeAxis(src.Height, src.DY, opts.ResamplingResolution)

	xs := make([]float64, 0, len(us)*len(vs))
	ys := make([]float64, 0, len(us)*len(vs))
	for _, v := range vs {
		for _, u := range us {
			xs = append(xs, src.OriginX+u*src.DX)
			ys = append(ys, src.OriginY+v*src.DY)
		}
	}

	batch, err := t.points.TransformPoints(ctx, source, destination, xs, ys, nil, transform.Options{
		AllowPointsOutsideCoverage: true,
		HorizontalEPSG:             opts.HorizontalEPSG,
	})
	if err != nil {
		return nil, vcrs.CompoundCRS{}, err
	}

	field := &separationField{
		us:  us,
		vs:  vs,
		sep: make([]float64, len(xs)),
		unc: make([]float64, len(xs)),
	}
	for i, res := range batch.Results {
		if !res.InCoverage {
			field.sep[i] = math.NaN()
			field.unc[i] = math.NaN()
			continue
		}
		// nodes carry zero input height, so the transformed height is the
		// separation itself
		field.sep[i] = res.Z
		field.unc[i] = res.Uncertainty
	}
	return field, batch.CRS, nil
}

// nodeAxis places lattice nodes along one axis in fractional pixel
// coordinates [0, n], spaced no wider than the requested resolution and
// always including both edges.
func nodeAxis(n int, pixelSize, resolution float64) []float64 {
	extent := float64(n) * math.Abs(pixelSize)
	nodes := n + 1
	if resolution > 0 {
		nodes = int(math.Ceil(extent/resolution)) + 1
		if nodes < 2 {
			nodes = 2
		}
	}
	out := make([]float64, nodes)
	step := float64(n) / float64(nodes-1)
	for i := range out {
		out[i] = float64(i) * step
	}
	return out
}

// at bilinearly interpolates the separation and uncertainty at fractional
// pixel coordinate (u, v). ok is false when any contributing node is
// unresolved.
func (f *separationField) at(u, v float64) (sep, unc float64, ok bool) {
	i := searchCell(f.us, u)
	j := searchCell(f.vs, v)

	u0, u1 := f.us[i], f.us[i+1]
	v0, v1 := f.vs[j], f.vs[j+1]
	fu := (u - u0) / (u1 - u0)
	fv := (v - v0) / (v1 - v0)

	w := len(f.us)
	s00, s10 := f.sep[j*w+i], f.sep[j*w+i+1]
	s01, s11 := f.sep[(j+1)*w+i], f.sep[(j+1)*w+i+1]
	if anyNaN(s00, s10, s01, s11) {
		return 0, 0, false
	}
	sep = lerp(lerp(s00, s10, fu), lerp(s01, s11, fu), fv)

	q00, q10 := f.unc[j*w+i], f.unc[j*w+i+1]
	q01, q11 := f.unc[(j+1)*w+i], f.unc[(j+1)*w+i+1]
	unc = lerp(lerp(q00, q10, fu), lerp(q01, q11, fu), fv)
	return sep, unc, true
}

// searchCell returns the index of the axis cell containing t, clamped to
// the valid range.
func searchCell(axis []float64, t float64) int {
	lo, hi := 0, len(axis)-2
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if axis[mid] <= t {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// fallbackUncertainty is the depth-scaled estimate assigned to tolerated
// out-of-coverage cells, following the CATZOC D accuracy band: 3m plus 6%
// of depth, never below 3m.
func fallbackUncertainty(z float64) float64 {
	if z > 0 {
		return 3.0
	}
	return 3.0 - 0.06*z
}
