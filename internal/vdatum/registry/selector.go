package registry

import "github.com/coastalmapping/vdatum/internal/vdatum/geo"

// Selection records which region covers a point. A point outside every
// footprint has InCoverage false and an empty RegionID.
type Selection struct {
	RegionID   string
	InCoverage bool
}

// SelectPoint returns the region covering p. When footprints overlap, the
// region with the smallest total footprint area wins; equal areas fall back
// to the lexicographically smallest ID, so selection is deterministic
// regardless of load order.
func (r *Registry) SelectPoint(p geo.Point) Selection {
	var best *Region
	for _, rg := range r.regions { // sorted by ID, so ties keep the earlier ID
		if !rg.Contains(p) {
			continue
		}
		if best == nil || rg.area < best.area {
			best = rg
		}
	}
	if best == nil {
		return Selection{}
	}
	return Selection{RegionID: best.ID, InCoverage: true}
}

// Select maps each point to its covering region, index for index.
func (r *Registry) Select(points []geo.Point) []Selection {
	out := make([]Selection, len(points))
	for i, p := range points {
		out[i] = r.SelectPoint(p)
	}
	return out
}

// SelectedRegions returns the distinct regions named by a selection run, in
// ID order. Out-of-coverage entries are skipped.
func (r *Registry) SelectedRegions(selections []Selection) []*Region {
	seen := make(map[string]bool)
	var out []*Region
	for _, rg := range r.regions {
		seen[rg.ID] = false
	}
	for _, sel := range selections {
		if sel.InCoverage {
			seen[sel.RegionID] = true
		}
	}
	for _, rg := range r.regions {
		if seen[rg.ID] {
			out = append(out, rg)
		}
	}
	return out
}
