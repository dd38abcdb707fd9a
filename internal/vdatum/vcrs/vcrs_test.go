package vcrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coastalmapping/vdatum/internal/vdatum/pipeline"
)

func regionInfo(id string) *pipeline.RegionInfo {
	return &pipeline.RegionInfo{
		ID:       id,
		GeoidRef: "core/geoid12b/g2012bu0.gtx",
		Uncertainties: map[string]float64{
			"tss":  0.014,
			"mllw": 0.021,
		},
	}
}

func mustBuild(t *testing.T, src, dst pipeline.Spec, region *pipeline.RegionInfo) pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.Build(src, dst, region)
	require.NoError(t, err)
	return p
}

func TestDescribeRemark(t *testing.T) {
	p := mustBuild(t, pipeline.Ellipsoidal(), pipeline.Named("mllw"), regionInfo("CAORblan01_8301"))
	c := Describe(6318, "vdatum_4.2", pipeline.Named("mllw"), []RegionPipeline{
		{RegionID: "CAORblan01_8301", Pipeline: p},
	})

	assert.Equal(t, "NAD83(2011) + mllw", c.Name())
	assert.Equal(t,
		"vdatum=vdatum_4.2,base_datum=[NAD83],regions=[CAORblan01_8301],"+
			"pipelines=[+proj=pipeline "+
			"+step +proj=vgridshift grids=core/geoid12b/g2012bu0.gtx "+
			"+step +inv +proj=vgridshift grids=CAORblan01_8301/tss.gtx "+
			"+step +proj=vgridshift grids=CAORblan01_8301/mllw.gtx]",
		c.Vertical.Remark.String())
}

func TestDescribeDeterministic(t *testing.T) {
	a := regionInfo("AAA_0001")
	b := regionInfo("BBB_0002")
	pa := mustBuild(t, pipeline.Ellipsoidal(), pipeline.Named("mllw"), a)
	pb := mustBuild(t, pipeline.Ellipsoidal(), pipeline.Named("mllw"), b)

	first := Describe(6318, "v1", pipeline.Named("mllw"), []RegionPipeline{
		{RegionID: "BBB_0002", Pipeline: pb},
		{RegionID: "AAA_0001", Pipeline: pa},
	})
	second := Describe(6318, "v1", pipeline.Named("mllw"), []RegionPipeline{
		{RegionID: "AAA_0001", Pipeline: pa},
		{RegionID: "BBB_0002", Pipeline: pb},
	})
	// same region set in any order yields byte-identical text
	assert.Equal(t, first.Vertical.Remark.String(), second.Vertical.Remark.String())
	assert.Equal(t, []string{"AAA_0001", "BBB_0002"}, first.Vertical.Remark.Regions)
}

func TestRemarkRoundTrip(t *testing.T) {
	p := mustBuild(t, pipeline.Named("tss"), pipeline.Named("mllw"), regionInfo("CAORblan01_8301"))
	c := Describe(6319, "vdatum_4.2", pipeline.Named("mllw"), []RegionPipeline{
		{RegionID: "CAORblan01_8301", Pipeline: p},
	})

	parsed, err := ParseRemark(c.Vertical.Remark.String())
	require.NoError(t, err)
	assert.Equal(t, c.Vertical.Remark, parsed)

	pipes, err := parsed.ReconstructPipelines()
	require.NoError(t, err)
	require.Len(t, pipes, 1)
	assert.Equal(t, p.String(), pipes[0].String())
}

func TestRemarkRoundTripNoOp(t *testing.T) {
	p := mustBuild(t, pipeline.Named("mllw"), pipeline.Named("mllw"), regionInfo("CAORblan01_8301"))
	require.True(t, p.NoOp())

	c := Describe(6318, "v1", pipeline.Named("mllw"), []RegionPipeline{
		{RegionID: "CAORblan01_8301", Pipeline: p},
	})
	text := c.Vertical.Remark.String()
	assert.Contains(t, text, "pipelines=[[]]")

	parsed, err := ParseRemark(text)
	require.NoError(t, err)
	pipes, err := parsed.ReconstructPipelines()
	require.NoError(t, err)
	require.Len(t, pipes, 1)
	assert.True(t, pipes[0].NoOp())
}

func TestParseRemarkErrors(t *testing.T) {
	tests := []string{
		"",
		"not a remark",
		"vdatum=v1,base_datum=[NAD83]",
		"vdatum=v1,base_datum=[NAD83],regions=[A],pipelines=[]",
		"base_datum=[NAD83],regions=[],pipelines=[]",
	}
	for _, text := range tests {
		_, err := ParseRemark(text)
		assert.ErrorIs(t, err, ErrBadRemark, "text %q", text)
	}
}

func TestWKT(t *testing.T) {
	p := mustBuild(t, pipeline.Ellipsoidal(), pipeline.Named("mllw"), regionInfo("CAORblan01_8301"))
	c := Describe(6318, "v1", pipeline.Named("mllw"), []RegionPipeline{
		{RegionID: "CAORblan01_8301", Pipeline: p},
	})

	wkt := c.WKT()
	assert.Contains(t, wkt, `COMPOUNDCRS["NAD83(2011) + mllw"`)
	assert.Contains(t, wkt, `GEOGCRS["NAD83(2011)",ID["EPSG",6318]]`)
	assert.Contains(t, wkt, `VERTCRS["mllw"`)
	assert.Contains(t, wkt, `REMARK["vdatum=v1,`)

	// rendering is stable
	assert.Equal(t, wkt, c.WKT())
}
