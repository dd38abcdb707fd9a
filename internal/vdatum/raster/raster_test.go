package raster

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coastalmapping/vdatum/internal/testutil"
	"github.com/coastalmapping/vdatum/internal/vdatum/pipeline"
	"github.com/coastalmapping/vdatum/internal/vdatum/registry"
	"github.com/coastalmapping/vdatum/internal/vdatum/transform"
)

const testRegionID = testutil.StandardRegionID

// fnShifter lets a test shape the separation field per coordinate.
type fnShifter func(gridRef string, lon, lat float64) (float64, error)

func (f fnShifter) Shift(gridRef string, lon, lat float64) (float64, error) {
	return f(gridRef, lon, lat)
}

// constantShifter yields the fixed forward values used in most tests: the
// full ellipse->mllw pipeline adds 37.2 + 0.5 + 0.77 = 38.47.
func constantShifter() fnShifter {
	values := map[string]float64{
		"core/geoid12b/g2012bu0.gtx": 37.2,
		testRegionID + "/tss.gtx":    -0.5,
		testRegionID + "/mllw.gtx":   0.77,
	}
	return func(gridRef string, lon, lat float64) (float64, error) {
		v, ok := values[gridRef]
		if !ok {
			return 0, fmt.Errorf("no fixture value for grid %s", gridRef)
		}
		return v, nil
	}
}

// coverage box is (-125, 42)..(-123, 44), as in the point transformer tests
func testTransformer(t *testing.T, sh fnShifter) *Transformer {
	t.Helper()
	reg, err := registry.Load(testutil.WriteStandardDistribution(t))
	require.NoError(t, err)
	return New(transform.New(reg, sh))
}

// testGrid is 4x4 at 0.25 degree pixels, fully inside coverage.
func testGrid(fill float64) *Grid {
	g := &Grid{
		Width: 4, Height: 4,
		OriginX: -124.5, OriginY: 43.5,
		DX: 0.25, DY: -0.25,
		NoData:    -9999,
		Elevation: make([]float64, 16),
	}
	for i := range g.Elevation {
		g.Elevation[i] = fill
	}
	return g
}

func TestTransformFullResolution(t *testing.T) {
	rt := testTransformer(t, constantShifter())
	g := testGrid(-20.0)

	out, err := rt.Transform(context.Background(), g,
		pipeline.Ellipsoidal(), pipeline.Named("mllw"), Options{})
	require.NoError(t, err)

	require.Equal(t, []string{BandElevation, BandUncertainty}, out.BandNames)
	require.Equal(t, []float64{-9999, -9999}, out.NoData)
	wantUnc := math.Sqrt(0.05*0.05 + 0.014*0.014 + 0.021*0.021)
	for i, v := range out.Bands[0] {
		assert.InDelta(t, -20.0+38.47, v, 1e-9, "pixel %d", i)
		assert.InDelta(t, wantUnc, out.Bands[1][i], 1e-9, "pixel %d", i)
	}
	assert.Equal(t, []string{testRegionID}, out.CRS.Vertical.Remark.Regions)
}

func TestTransformResampledMatchesLinearField(t *testing.T) {
	// geoid separation linear in longitude; bilinear resampling of a
	// linear field is exact, so a sparse lattice reproduces full
	// resolution values
	sh := fnShifter(func(gridRef string, lon, lat float64) (float64, error) {
		if gridRef == "core/geoid12b/g2012bu0.gtx" {
			return 30.0 + 2.0*(lon+124.0), nil
		}
		return 0.5, nil
	})
	rt := testTransformer(t, sh)
	g := testGrid(0)

	full, err := rt.Transform(context.Background(), g,
		pipeline.Ellipsoidal(), pipeline.Named("mllw"), Options{})
	require.NoError(t, err)

	sparse, err := rt.Transform(context.Background(), g,
		pipeline.Ellipsoidal(), pipeline.Named("mllw"),
		Options{ResamplingResolution: 0.5})
	require.NoError(t, err)

	for i := range full.Bands[0] {
		assert.InDelta(t, full.Bands[0][i], sparse.Bands[0][i], 1e-9, "pixel %d", i)
	}
}

func TestTransformPreservesNoData(t *testing.T) {
	rt := testTransformer(t, constantShifter())
	g := testGrid(-5.0)
	g.Elevation[0] = g.NoData
	g.Elevation[7] = math.NaN()

	out, err := rt.Transform(context.Background(), g,
		pipeline.Ellipsoidal(), pipeline.Named("mllw"), Options{})
	require.NoError(t, err)

	assert.Equal(t, -9999.0, out.Bands[0][0])
	assert.Equal(t, -9999.0, out.Bands[1][0])
	assert.Equal(t, -9999.0, out.Bands[0][7])
	assert.InDelta(t, -5.0+38.47, out.Bands[0][1], 1e-9)
}

func TestTransformAllNoData(t *testing.T) {
	rt := testTransformer(t, constantShifter())
	g := testGrid(-9999)

	out, err := rt.Transform(context.Background(), g,
		pipeline.Ellipsoidal(), pipeline.Named("mllw"), Options{})
	require.NoError(t, err)
	for i := range out.Bands[0] {
		assert.Equal(t, -9999.0, out.Bands[0][i], "pixel %d", i)
		assert.Equal(t, -9999.0, out.Bands[1][i], "pixel %d", i)
	}
	assert.Empty(t, out.CRS.Vertical.Remark.Regions)
}

func TestTransformOutsideCoverage(t *testing.T) {
	rt := testTransformer(t, constantShifter())
	// the right half of the raster hangs past the -123 coverage edge
	g := testGrid(-10.0)
	g.OriginX = -123.5

	// unresolved pixels go to nodata in both bands; the call still succeeds
	out, err := rt.Transform(context.Background(), g,
		pipeline.Ellipsoidal(), pipeline.Named("mllw"), Options{})
	require.NoError(t, err)
	last := g.Width - 1
	assert.InDelta(t, -10.0+38.47, out.Bands[0][0], 1e-9)
	assert.Equal(t, -9999.0, out.Bands[0][last])
	assert.Equal(t, -9999.0, out.Bands[1][last])

	out, err = rt.Transform(context.Background(), g,
		pipeline.Ellipsoidal(), pipeline.Named("mllw"),
		Options{AllowPointsOutsideCoverage: true})
	require.NoError(t, err)

	// in-coverage pixel, leftmost column
	assert.InDelta(t, -10.0+38.47, out.Bands[0][0], 1e-9)
	// out-of-coverage pixel, rightmost column: elevation kept, fallback
	// uncertainty 3 + 6% of depth
	assert.Equal(t, -10.0, out.Bands[0][last])
	assert.InDelta(t, 3.0+0.6, out.Bands[1][last], 1e-9)
}

func TestFallbackUncertainty(t *testing.T) {
	assert.InDelta(t, 3.0, fallbackUncertainty(5.0), 1e-12)
	assert.InDelta(t, 3.0, fallbackUncertainty(0.0), 1e-12)
	assert.InDelta(t, 3.6, fallbackUncertainty(-10.0), 1e-12)
}

func TestTransformRejectsBadGrid(t *testing.T) {
	rt := testTransformer(t, constantShifter())
	g := &Grid{Width: 2, Height: 2, Elevation: make([]float64, 3)}
	_, err := rt.Transform(context.Background(), g,
		pipeline.Ellipsoidal(), pipeline.Named("mllw"), Options{})
	require.Error(t, err)
}

func TestNodeAxis(t *testing.T) {
	full := nodeAxis(4, 0.25, 0)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, full)

	sparse := nodeAxis(4, 0.25, 0.5) // 1 degree extent, 0.5 spacing -> 3 nodes
	require.Len(t, sparse, 3)
	assert.Equal(t, 0.0, sparse[0])
	assert.Equal(t, 4.0, sparse[2])

	coarse := nodeAxis(4, 0.25, 10)
	assert.Equal(t, []float64{0, 4}, coarse)
}
