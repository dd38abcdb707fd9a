// Package vcrs builds compound (horizontal + vertical) reference system
// descriptors for transformed outputs. The vertical component's remark text
// is the durable record of how a result was derived: it names the grid
// distribution version, the base datum, every region used and the literal
// pipeline applied in each, and it parses back into the same pipelines so a
// result can be inverted later without re-running region selection.
package vcrs

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/coastalmapping/vdatum/internal/vdatum/pipeline"
)

// ErrBadRemark reports remark text that does not follow the expected
// key=value layout.
var ErrBadRemark = errors.New("malformed remark")

// BaseDatumName is the name recorded for the pivot in remark text.
const BaseDatumName = "NAD83"

// Remark is the structured content of a vertical CRS remark. Regions and
// Pipelines are parallel: Pipelines[i] was applied inside Regions[i].
type Remark struct {
	VDatumVersion string
	BaseDatum     string
	Regions       []string
	Pipelines     []string
}

// String renders the remark in its canonical field order. The same inputs
// always produce byte-identical text.
func (rm Remark) String() string {
	return fmt.Sprintf("vdatum=%s,base_datum=[%s],regions=[%s],pipelines=[%s]",
		rm.VDatumVersion,
		rm.BaseDatum,
		strings.Join(rm.Regions, ","),
		strings.Join(rm.Pipelines, ","))
}

// ParseRemark reconstructs a Remark from its canonical text.
func ParseRemark(text string) (Remark, error) {
	var rm Remark

	version, rest, found := strings.Cut(text, ",base_datum=[")
	if !found || !strings.HasPrefix(version, "vdatum=") {
		return rm, fmt.Errorf("%w: %q", ErrBadRemark, text)
	}
	rm.VDatumVersion = strings.TrimPrefix(version, "vdatum=")

	base, rest, found := strings.Cut(rest, "],regions=[")
	if !found {
		return rm, fmt.Errorf("%w: missing regions field", ErrBadRemark)
	}
	rm.BaseDatum = base

	regions, rest, found := strings.Cut(rest, "],pipelines=[")
	if !found || !strings.HasSuffix(rest, "]") {
		return rm, fmt.Errorf("%w: missing pipelines field", ErrBadRemark)
	}
	if regions != "" {
		rm.Regions = strings.Split(regions, ",")
	}
	// canonical pipeline text never contains commas, so the list splits
	// cleanly even though the clauses themselves carry spaces and '+'
	if body := strings.TrimSuffix(rest, "]"); body != "" {
		rm.Pipelines = strings.Split(body, ",")
	}
	if len(rm.Regions) != len(rm.Pipelines) {
		return rm, fmt.Errorf("%w: %d regions but %d pipelines",
			ErrBadRemark, len(rm.Regions), len(rm.Pipelines))
	}
	return rm, nil
}

// ReconstructPipelines parses the remark's pipeline texts back into
// pipelines, in region order.
func (rm Remark) ReconstructPipelines() ([]pipeline.Pipeline, error) {
	out := make([]pipeline.Pipeline, 0, len(rm.Pipelines))
	for i, text := range rm.Pipelines {
		p, err := pipeline.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("remark pipeline for region %s: %w", rm.Regions[i], err)
		}
		out = append(out, p)
	}
	return out, nil
}

// VerticalCRS describes the vertical component of a transformed output.
type VerticalCRS struct {
	DatumName string
	Remark    Remark
}

// CompoundCRS pairs an unchanged horizontal reference with the new vertical
// component. Immutable once built.
type CompoundCRS struct {
	HorizontalEPSG int
	Vertical       VerticalCRS
}

// Name returns the compound "horizontal + vertical" display name.
func (c CompoundCRS) Name() string {
	return horizontalName(c.HorizontalEPSG) + " + " + c.Vertical.DatumName
}

// RegionPipeline names the pipeline applied inside one region.
type RegionPipeline struct {
	RegionID string
	Pipeline pipeline.Pipeline
}

// Describe builds the compound descriptor for a transformation that applied
// the given per-region pipelines. It is a pure function: region entries are
// sorted by ID before rendering, so the same set always yields the same
// remark regardless of the order regions were touched in.
func Describe(horizontalEPSG int, vdatumVersion string, destination pipeline.Spec, used []RegionPipeline) CompoundCRS {
	sorted := make([]RegionPipeline, len(used))
	copy(sorted, used)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RegionID < sorted[j].RegionID })

	rm := Remark{
		VDatumVersion: vdatumVersion,
		BaseDatum:     BaseDatumName,
	}
	for _, rp := range sorted {
		rm.Regions = append(rm.Regions, rp.RegionID)
		rm.Pipelines = append(rm.Pipelines, rp.Pipeline.String())
	}
	return CompoundCRS{
		HorizontalEPSG: horizontalEPSG,
		Vertical: VerticalCRS{
			DatumName: destination.String(),
			Remark:    rm,
		},
	}
}

// horizontalName maps the horizontal codes seen in practice; unknown codes
// render as plain EPSG references.
func horizontalName(epsg int) string {
	switch epsg {
	case 6318, 6319:
		return "NAD83(2011)"
	case 4326, 4979:
		return "WGS 84"
	default:
		return fmt.Sprintf("EPSG:%d", epsg)
	}
}
