// Package registry loads and serves the static catalogue of vertical datum
// regions from an on-disk grid distribution. The distribution layout is one
// subdirectory per region holding that region's correction grids (.gtx) and
// a KML coverage footprint, a core/ subdirectory holding the pivot geoid
// grids, and a vdatum_sigma.inf file with per-layer uncertainty estimates.
//
// A Registry is built once at process start and is read-only afterwards; it
// is safe for concurrent readers without locking.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/coastalmapping/vdatum/internal/monitoring"
	"github.com/coastalmapping/vdatum/internal/vdatum/geo"
	"github.com/coastalmapping/vdatum/internal/vdatum/pipeline"
)

// ErrLoad wraps every failure to construct a Registry: missing directory,
// missing pivot grids, unreadable footprints. These are fatal at startup.
var ErrLoad = errors.New("registry load failed")

// Pivot geoid grids. CONUS regions relate to the pivot through geoid12b;
// Alaskan regions through xgeoid18b, matching the distribution convention.
const (
	conusGeoidRef  = "core/geoid12b/g2012bu0.gtx"
	alaskaGeoidRef = "core/xgeoid18b/AK_18B.gtx"
)

// Region is one geographic coverage area with its correction grids.
// Immutable after load.
type Region struct {
	ID         string
	Footprints []geo.Polygon

	geoidRef         string
	geoidUncertainty float64
	uncertainties    map[string]float64
	gridFiles        map[string]bool // file names present in the region directory

	area   float64
	bounds []geo.BoundingBox
}

// Area returns the total footprint area in square degrees, used as the
// specificity measure for overlap tie-breaking.
func (rg *Region) Area() float64 { return rg.area }

// Contains reports whether the coordinate falls inside any footprint
// polygon, boundary inclusive.
func (rg *Region) Contains(p geo.Point) bool {
	for i, poly := range rg.Footprints {
		if !rg.bounds[i].Contains(p) {
			continue
		}
		if poly.Contains(p) {
			return true
		}
	}
	return false
}

// HasGrid reports whether the region directory holds the named grid file.
func (rg *Region) HasGrid(name string) bool { return rg.gridFiles[name] }

// Info returns the builder-facing view of the region.
func (rg *Region) Info() *pipeline.RegionInfo {
	return &pipeline.RegionInfo{
		ID:               rg.ID,
		GeoidRef:         rg.geoidRef,
		GeoidUncertainty: rg.geoidUncertainty,
		Uncertainties:    rg.uncertainties,
	}
}

// Registry is the loaded, immutable region catalogue.
type Registry struct {
	basePath string
	version  string
	regions  []*Region // sorted by ID
	byID     map[string]*Region
}

// Load constructs a Registry from the distribution rooted at basePath.
func Load(basePath string) (*Registry, error) {
	info, err := os.Stat(basePath)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: distribution not found at %s", ErrLoad, basePath)
	}

	sigma, err := loadSigma(filepath.Join(basePath, sigmaFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	entries, err := os.ReadDir(basePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	r := &Registry{
		basePath: basePath,
		byID:     make(map[string]*Region),
	}
	neededGeoids := make(map[string]bool)
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "core" {
			continue
		}
		region, err := loadRegion(basePath, entry.Name(), sigma)
		if err != nil {
			return nil, fmt.Errorf("%w: region %s: %v", ErrLoad, entry.Name(), err)
		}
		if region == nil {
			continue // not a region directory
		}
		neededGeoids[region.geoidRef] = true
		r.regions = append(r.regions, region)
		r.byID[region.ID] = region
	}
	if len(r.regions) == 0 {
		return nil, fmt.Errorf("%w: no regions found under %s", ErrLoad, basePath)
	}
	sort.Slice(r.regions, func(i, j int) bool { return r.regions[i].ID < r.regions[j].ID })

	// the pivot grids every loaded region depends on must be present
	for ref := range neededGeoids {
		if _, err := os.Stat(filepath.Join(basePath, filepath.FromSlash(ref))); err != nil {
			return nil, fmt.Errorf("%w: required pivot grid %s missing", ErrLoad, ref)
		}
	}

	r.version = detectVersion(basePath)
	monitoring.Logf("registry: loaded %d regions from %s (version %s)",
		len(r.regions), basePath, r.version)
	return r, nil
}

// loadRegion reads one region subdirectory. Directories without grid files
// are skipped (returned as nil) rather than failing the load.
func loadRegion(basePath, id string, sigma sigmaTable) (*Region, error) {
	dir := filepath.Join(basePath, id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	gridFiles := make(map[string]bool)
	kmlPath := ""
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".gtx", ".tif", ".tiff":
			gridFiles[name] = true
		case ".kml":
			kmlPath = filepath.Join(dir, name)
		}
	}
	if len(gridFiles) == 0 {
		return nil, nil
	}
	if kmlPath == "" {
		return nil, fmt.Errorf("no coverage footprint (.kml) found")
	}

	footprints, err := geo.ParseKMLFile(kmlPath)
	if err != nil {
		return nil, err
	}

	rg := &Region{
		ID:         id,
		Footprints: footprints,
		gridFiles:  gridFiles,
	}
	for _, poly := range footprints {
		rg.area += poly.Area()
		rg.bounds = append(rg.bounds, poly.Bounds())
	}

	if isAlaska(id) {
		rg.geoidRef = alaskaGeoidRef
		rg.geoidUncertainty = sigma.geoid("xgeoid18b")
	} else {
		rg.geoidRef = conusGeoidRef
		rg.geoidUncertainty = sigma.geoid("geoid12b")
	}
	rg.uncertainties = sigma.forRegion(id)
	return rg, nil
}

// isAlaska matches the distribution's Alaskan region naming, which drives
// the choice of pivot geoid.
func isAlaska(regionID string) bool {
	return strings.HasPrefix(strings.ToUpper(regionID), "AK")
}

// BasePath returns the distribution root the registry was loaded from.
func (r *Registry) BasePath() string { return r.basePath }

// Version returns the detected distribution version string.
func (r *Registry) Version() string { return r.version }

// Regions returns all regions ordered by ID. The slice must not be mutated.
func (r *Registry) Regions() []*Region { return r.regions }

// Region looks a region up by ID.
func (r *Registry) Region(id string) (*Region, bool) {
	rg, ok := r.byID[id]
	return rg, ok
}

// GridStepsFor returns the ordered pivot-to-datum steps for a named datum in
// a region, verifying that every regional grid the datum needs is actually
// present in the region directory.
func (r *Registry) GridStepsFor(regionID string, datum pipeline.Spec) ([]pipeline.GridStep, error) {
	rg, ok := r.byID[regionID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown region %q", pipeline.ErrNoRegion, regionID)
	}
	p, err := pipeline.Build(pipeline.Ellipsoidal(), datum, rg.Info())
	if err != nil {
		return nil, err
	}
	if err := r.ValidateSteps(p.Steps); err != nil {
		return nil, err
	}
	return p.Steps, nil
}

// ValidateSteps confirms that every grid a pipeline references exists in the
// distribution. A datum whose grids are absent for the region is unsupported
// there, not a runtime failure.
func (r *Registry) ValidateSteps(steps []pipeline.GridStep) error {
	for _, step := range steps {
		if strings.HasPrefix(step.GridRef, "core/") {
			continue // pivot grids were verified at load time
		}
		regionID, file, found := strings.Cut(step.GridRef, "/")
		if !found {
			return fmt.Errorf("%w: malformed grid reference %q", pipeline.ErrUnsupportedDatum, step.GridRef)
		}
		rg, ok := r.byID[regionID]
		if !ok || !rg.HasGrid(file) {
			return fmt.Errorf("%w: grid %s not present in distribution", pipeline.ErrUnsupportedDatum, step.GridRef)
		}
	}
	return nil
}
