package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coastalmapping/vdatum/internal/testutil"
	"github.com/coastalmapping/vdatum/internal/vdatum/geo"
	"github.com/coastalmapping/vdatum/internal/vdatum/pipeline"
)

// writeDistribution builds a minimal grid distribution on disk with two
// overlapping CONUS regions. The inner region sits entirely inside the
// outer one so overlap tie-breaking can be exercised.
func writeDistribution(t *testing.T) string {
	t.Helper()
	base := t.TempDir()

	testutil.WritePivotGeoid(t, base)

	// outer: 10x10 degrees, inner: 2x2 degrees centered within it
	testutil.WriteRegion(t, base, "WAcoast33_4601", -130, 40, -120, 50,
		"tss.gtx", "mllw.gtx", "mhw.gtx", "mtl.gtx", "dtl.gtx", "mhhw.gtx", "mlw.gtx")
	testutil.WriteRegion(t, base, "WApugets02_8302", -126, 44, -124, 46,
		"tss.gtx", "mllw.gtx", "mhw.gtx")

	testutil.WriteFile(t, base, sigmaFileName, `# layer uncertainties in centimeters
conus.navd88.nad83=5.0
ak.navd88.nad83=8.0
WAcoast33_4601.navd88.lmsl=1.4
WAcoast33_4601.lmsl.mllw=2.1
WAcoast33_4601.lmsl.mhw=1.8
WApugets02_8302.navd88.lmsl=1.1
WApugets02_8302.lmsl.mllw=1.6
`)
	testutil.WriteFile(t, base, versionFileName, "vdatum_4.2\n")
	return base
}

func TestLoad(t *testing.T) {
	base := writeDistribution(t)
	r, err := Load(base)
	require.NoError(t, err)

	assert.Equal(t, "vdatum_4.2", r.Version())
	assert.Equal(t, base, r.BasePath())
	require.Len(t, r.Regions(), 2)
	assert.Equal(t, "WAcoast33_4601", r.Regions()[0].ID)
	assert.Equal(t, "WApugets02_8302", r.Regions()[1].ID)

	rg, ok := r.Region("WAcoast33_4601")
	require.True(t, ok)
	info := rg.Info()
	assert.Equal(t, conusGeoidRef, info.GeoidRef)
	assert.InDelta(t, 0.05, info.GeoidUncertainty, 1e-12)
	assert.InDelta(t, 0.014, info.Uncertainties["tss"], 1e-12)
	assert.InDelta(t, 0.021, info.Uncertainties["mllw"], 1e-12)
	assert.InDelta(t, 0.018, info.Uncertainties["mhw"], 1e-12)

	assert.True(t, rg.HasGrid("mllw.gtx"))
	assert.False(t, rg.HasGrid("dem.gtx"))
}

func TestLoadMissingDistribution(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, ErrLoad)
}

func TestLoadMissingPivotGrid(t *testing.T) {
	base := writeDistribution(t)
	require.NoError(t, os.Remove(filepath.Join(base, "core", "geoid12b", "g2012bu0.gtx")))
	_, err := Load(base)
	require.ErrorIs(t, err, ErrLoad)
}

func TestLoadNoRegions(t *testing.T) {
	base := t.TempDir()
	testutil.WritePivotGeoid(t, base)
	_, err := Load(base)
	require.ErrorIs(t, err, ErrLoad)
}

func TestLoadRegionWithoutFootprint(t *testing.T) {
	base := writeDistribution(t)
	dir := filepath.Join(base, "WAbroken00_0000")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mllw.gtx"), []byte("grid"), 0o644))
	_, err := Load(base)
	require.ErrorIs(t, err, ErrLoad)
}

func TestLoadSkipsNonRegionDirs(t *testing.T) {
	base := writeDistribution(t)
	require.NoError(t, os.MkdirAll(filepath.Join(base, "docs"), 0o755))
	r, err := Load(base)
	require.NoError(t, err)
	assert.Len(t, r.Regions(), 2)
}

func TestDetectVersionFingerprint(t *testing.T) {
	base := writeDistribution(t)
	require.NoError(t, os.Remove(filepath.Join(base, versionFileName)))

	r, err := Load(base)
	require.NoError(t, err)
	assert.Contains(t, r.Version(), "md5.")

	// fingerprint is cached, so a reload sees the same version
	cached, err := os.ReadFile(filepath.Join(base, versionFileName))
	require.NoError(t, err)
	assert.Contains(t, string(cached), r.Version())
}

func TestSelectPoint(t *testing.T) {
	base := writeDistribution(t)
	r, err := Load(base)
	require.NoError(t, err)

	tests := []struct {
		name string
		p    geo.Point
		want Selection
	}{
		{"inner region wins overlap", geo.Point{X: -125, Y: 45},
			Selection{RegionID: "WApugets02_8302", InCoverage: true}},
		{"outer region only", geo.Point{X: -129, Y: 41},
			Selection{RegionID: "WAcoast33_4601", InCoverage: true}},
		{"boundary vertex is covered", geo.Point{X: -130, Y: 40},
			Selection{RegionID: "WAcoast33_4601", InCoverage: true}},
		{"out of coverage", geo.Point{X: 0, Y: 0}, Selection{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.SelectPoint(tt.p))
		})
	}
}

func TestSelectTieBreaksByID(t *testing.T) {
	base := t.TempDir()
	testutil.WritePivotGeoid(t, base)
	// identical footprints, so only the ID ordering can decide
	testutil.WriteRegion(t, base, "NBtwin02_2002", -70, 40, -69, 41, "tss.gtx", "mllw.gtx")
	testutil.WriteRegion(t, base, "NAtwin01_2001", -70, 40, -69, 41, "tss.gtx", "mllw.gtx")

	r, err := Load(base)
	require.NoError(t, err)
	sel := r.SelectPoint(geo.Point{X: -69.5, Y: 40.5})
	assert.Equal(t, Selection{RegionID: "NAtwin01_2001", InCoverage: true}, sel)
}

func TestSelectedRegions(t *testing.T) {
	base := writeDistribution(t)
	r, err := Load(base)
	require.NoError(t, err)

	sels := r.Select([]geo.Point{
		{X: -125, Y: 45}, // inner
		{X: -129, Y: 41}, // outer
		{X: 0, Y: 0},     // out of coverage
		{X: -125, Y: 45}, // inner again
	})
	regions := r.SelectedRegions(sels)
	require.Len(t, regions, 2)
	assert.Equal(t, "WAcoast33_4601", regions[0].ID)
	assert.Equal(t, "WApugets02_8302", regions[1].ID)
}

func TestGridStepsFor(t *testing.T) {
	base := writeDistribution(t)
	r, err := Load(base)
	require.NoError(t, err)

	steps, err := r.GridStepsFor("WAcoast33_4601", pipeline.Named("mllw"))
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, conusGeoidRef, steps[0].GridRef)
	assert.Equal(t, "WAcoast33_4601/tss.gtx", steps[1].GridRef)
	assert.Equal(t, "WAcoast33_4601/mllw.gtx", steps[2].GridRef)
}

func TestGridStepsForMissingGrid(t *testing.T) {
	base := writeDistribution(t)
	r, err := Load(base)
	require.NoError(t, err)

	// the inner test region has no mtl grid
	_, err = r.GridStepsFor("WApugets02_8302", pipeline.Named("mtl"))
	require.ErrorIs(t, err, pipeline.ErrUnsupportedDatum)

	_, err = r.GridStepsFor("nowhere", pipeline.Named("mllw"))
	require.ErrorIs(t, err, pipeline.ErrNoRegion)
}

func TestSigmaParseErrors(t *testing.T) {
	base := writeDistribution(t)
	require.NoError(t, os.WriteFile(filepath.Join(base, sigmaFileName),
		[]byte("WAcoast33_4601.lmsl.mllw\n"), 0o644))
	_, err := Load(base)
	require.ErrorIs(t, err, ErrLoad)
}
