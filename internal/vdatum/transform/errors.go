package transform

import (
	"fmt"
	"strings"

	"github.com/coastalmapping/vdatum/internal/vdatum/geo"
)

// CoverageError reports points that fall outside every region footprint when
// the caller did not opt in to passing them through. It carries the
// offending coordinates so the caller can diagnose without re-running
// selection.
type CoverageError struct {
	Points []geo.Point
}

func (e *CoverageError) Error() string {
	const maxListed = 5
	var b strings.Builder
	fmt.Fprintf(&b, "%d point(s) outside all region coverage:", len(e.Points))
	for i, p := range e.Points {
		if i == maxListed {
			fmt.Fprintf(&b, " and %d more", len(e.Points)-maxListed)
			break
		}
		fmt.Fprintf(&b, " (%.6f, %.6f)", p.X, p.Y)
	}
	return b.String()
}

// PipelineApplicationError reports a grid-shift failure mid-pipeline, such
// as a corrupt or truncated grid file. Application is deterministic, so the
// failure is surfaced immediately rather than retried.
type PipelineApplicationError struct {
	GridRef string
	X, Y    float64
	Err     error
}

func (e *PipelineApplicationError) Error() string {
	return fmt.Sprintf("applying grid %s at (%.6f, %.6f): %v", e.GridRef, e.X, e.Y, e.Err)
}

func (e *PipelineApplicationError) Unwrap() error { return e.Err }
