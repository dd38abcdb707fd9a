package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Direction of one grid-shift application.
type Direction int

const (
	Forward Direction = iota
	Inverse
)

// String renders the direction as it appears in pipeline text.
func (d Direction) String() string {
	if d == Inverse {
		return "inverse"
	}
	return "forward"
}

// GridStep is one directed application of a correction grid. Steps are
// immutable once built.
type GridStep struct {
	GridRef     string    // grid path relative to the distribution root
	Direction   Direction // forward adds the grid value, inverse subtracts it
	Layer       string    // uncertainty layer this grid belongs to
	Uncertainty float64   // one-sigma uncertainty estimate in metres
}

// inverted returns the step with its direction flipped.
func (g GridStep) inverted() GridStep {
	if g.Direction == Forward {
		g.Direction = Inverse
	} else {
		g.Direction = Forward
	}
	return g
}

// RegionInfo is the slice of region data the builder needs: the identifier,
// the geoid grid serving as the region's pivot relation, and the per-layer
// uncertainty estimates. The registry package assembles these.
type RegionInfo struct {
	ID               string
	GeoidRef         string             // e.g. "core/geoid12b/g2012bu0.gtx"
	GeoidUncertainty float64            // metres
	Uncertainties    map[string]float64 // layer name -> metres
}

// Pipeline is an ordered, directed sequence of grid steps between two
// vertical datum endpoints within one region. An empty Steps slice is a
// valid no-op pipeline (identical endpoints, or ellipsoidal to ellipsoidal).
type Pipeline struct {
	Source      Spec
	Destination Spec
	Region      string
	Steps       []GridStep
}

// NoOp reports whether the pipeline performs no vertical change.
func (p Pipeline) NoOp() bool { return len(p.Steps) == 0 }

// Errors surfaced by Build. ErrNoRegion and ErrUnsupportedDatum wrap the
// requested datum so callers can report it without re-deriving regions.
var (
	ErrNoRegion         = errors.New("no region resolved for named vertical datum")
	ErrUnsupportedDatum = errors.New("vertical datum not supported in region")
)

// Build assembles the pipeline from source to destination through the pivot
// datum. region may be nil only when both endpoints are ellipsoidal.
//
// The composition rule: take each named endpoint's pivot-relative step list,
// cancel the common prefix (steps both legs would traverse coincide and
// collapse to a no-op), then run the remaining source steps inverted in
// reverse order followed by the remaining destination steps forward.
func Build(source, destination Spec, region *RegionInfo) (Pipeline, error) {
	p := Pipeline{Source: source, Destination: destination}
	if region != nil {
		p.Region = region.ID
	}

	if source == destination {
		return p, nil
	}
	if source.Kind == KindNamed || destination.Kind == KindNamed {
		if region == nil {
			return Pipeline{}, fmt.Errorf("%w: %s -> %s", ErrNoRegion, source, destination)
		}
	}

	srcLeg, err := legFor(source, region)
	if err != nil {
		return Pipeline{}, err
	}
	dstLeg, err := legFor(destination, region)
	if err != nil {
		return Pipeline{}, err
	}

	// cancel the shared prefix
	common := 0
	for common < len(srcLeg) && common < len(dstLeg) && srcLeg[common] == dstLeg[common] {
		common++
	}
	srcLeg = srcLeg[common:]
	dstLeg = dstLeg[common:]

	steps := make([]GridStep, 0, len(srcLeg)+len(dstLeg))
	for i := len(srcLeg) - 1; i >= 0; i-- {
		steps = append(steps, srcLeg[i].inverted())
	}
	steps = append(steps, dstLeg...)
	p.Steps = steps
	return p, nil
}

// legFor expands a datum definition into concrete steps for the region.
// The ellipsoidal pivot has an empty leg.
func legFor(spec Spec, region *RegionInfo) ([]GridStep, error) {
	if spec.Kind == KindEllipsoidal {
		return nil, nil
	}
	templates, ok := datumDefinitions[spec.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s (supported: %s)",
			ErrUnsupportedDatum, spec.Name, region.ID, SupportedDatums())
	}
	steps := make([]GridStep, 0, len(templates))
	for _, tpl := range templates {
		step := GridStep{Layer: tpl.layer}
		if tpl.inverse {
			step.Direction = Inverse
		}
		if tpl.gridRef == geoidToken {
			step.GridRef = region.GeoidRef
			step.Uncertainty = region.GeoidUncertainty
		} else {
			step.GridRef = strings.ReplaceAll(tpl.gridRef, regionToken, region.ID)
			step.Uncertainty = region.Uncertainties[tpl.layer]
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// String renders the canonical pipeline text recorded in provenance remarks:
// "+proj=pipeline" followed by one "+step [+inv] +proj=vgridshift grids=<ref>"
// clause per step. A no-op pipeline renders as "[]".
func (p Pipeline) String() string {
	if p.NoOp() {
		return "[]"
	}
	var b strings.Builder
	b.WriteString("+proj=pipeline")
	for _, s := range p.Steps {
		b.WriteString(" +step ")
		if s.Direction == Inverse {
			b.WriteString("+inv ")
		}
		b.WriteString("+proj=vgridshift grids=")
		b.WriteString(s.GridRef)
	}
	return b.String()
}

// Parse reconstructs the step sequence from canonical pipeline text, as
// produced by String. Layer names and uncertainties are not recoverable from
// the text; only grid references and directions round-trip.
func Parse(text string) (Pipeline, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "[]" {
		return Pipeline{}, nil
	}
	if !strings.HasPrefix(text, "+proj=pipeline") {
		return Pipeline{}, fmt.Errorf("pipeline text must start with +proj=pipeline, got %q", text)
	}
	var p Pipeline
	clauses := strings.Split(text, "+step")
	for _, clause := range clauses[1:] {
		clause = strings.TrimSpace(clause)
		step := GridStep{}
		if strings.HasPrefix(clause, "+inv") {
			step.Direction = Inverse
			clause = strings.TrimSpace(strings.TrimPrefix(clause, "+inv"))
		}
		found := false
		for _, field := range strings.Fields(clause) {
			if ref, ok := strings.CutPrefix(field, "grids="); ok {
				step.GridRef = ref
				found = true
			}
		}
		if !found {
			return Pipeline{}, fmt.Errorf("step clause %q has no grids= parameter", clause)
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

// Inverted returns the pipeline running in the opposite direction: steps
// reversed with directions flipped and endpoints swapped.
func (p Pipeline) Inverted() Pipeline {
	inv := Pipeline{
		Source:      p.Destination,
		Destination: p.Source,
		Region:      p.Region,
		Steps:       make([]GridStep, 0, len(p.Steps)),
	}
	for i := len(p.Steps) - 1; i >= 0; i-- {
		inv.Steps = append(inv.Steps, p.Steps[i].inverted())
	}
	return inv
}
