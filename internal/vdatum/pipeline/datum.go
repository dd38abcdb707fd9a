// Package pipeline assembles ordered grid-shift step sequences between
// vertical datums. Every named datum is defined by its relation to the one
// pivot datum (the ellipsoidal NAD83(2011) frame), so an arbitrary
// source→destination conversion is always the inverse of the source leg
// followed by the forward destination leg; no direct datum-pair table is
// ever needed.
package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Kind discriminates the two flavours of vertical datum endpoint.
type Kind int

const (
	// KindEllipsoidal is a height on the pivot ellipsoid; no grids needed.
	KindEllipsoidal Kind = iota
	// KindNamed is a local datum reached through regional correction grids.
	KindNamed
)

// Spec identifies one endpoint of a requested transformation. It is the
// closed tagged variant resolved once at the API boundary; nothing deeper in
// the pipeline logic re-inspects raw user input.
type Spec struct {
	Kind Kind
	Name string // datum identifier when Kind == KindNamed, e.g. "mllw"
}

// Ellipsoidal returns the pivot-ellipsoid endpoint spec.
func Ellipsoidal() Spec { return Spec{Kind: KindEllipsoidal} }

// Named returns an endpoint spec for the given local datum identifier.
func Named(id string) Spec { return Spec{Kind: KindNamed, Name: strings.ToLower(id)} }

// String renders the spec for logs and error messages.
func (s Spec) String() string {
	if s.Kind == KindEllipsoidal {
		return "ellipse"
	}
	return s.Name
}

// ellipsoidalEPSG lists the EPSG codes accepted as "already at the pivot":
// the 2D and 3D NAD83(2011) geographic systems and 3D WGS84.
var ellipsoidalEPSG = map[int]bool{
	6318: true, // NAD83(2011) 2D
	6319: true, // NAD83(2011) 3D
	4979: true, // WGS84 3D
}

// ParseSpec resolves a caller-facing datum identifier into a Spec. Accepted
// forms: a known named datum string ("mllw", "navd88", ...), the pivot
// aliases ("ellipse", "nad83"), or a decimal EPSG code string for an
// ellipsoidal system.
func ParseSpec(s string) (Spec, error) {
	ls := strings.ToLower(strings.TrimSpace(s))
	switch ls {
	case "ellipse", "nad83", "nad83(2011)":
		return Ellipsoidal(), nil
	}
	if _, ok := datumDefinitions[ls]; ok {
		return Named(ls), nil
	}
	var code int
	if _, err := fmt.Sscanf(ls, "%d", &code); err == nil {
		return SpecFromEPSG(code)
	}
	return Spec{}, fmt.Errorf("unknown vertical datum %q, supported: %s", s, SupportedDatums())
}

// SpecFromEPSG resolves an integer EPSG code. Only ellipsoidal pivot frames
// are recognised; named datums have no EPSG registration in the distribution.
func SpecFromEPSG(code int) (Spec, error) {
	if ellipsoidalEPSG[code] {
		return Ellipsoidal(), nil
	}
	return Spec{}, fmt.Errorf("EPSG %d is not a recognised ellipsoidal frame", code)
}

// stepTemplate is one layer of a datum definition before region and geoid
// substitution. Layer names match the uncertainty layers of the sigma file.
type stepTemplate struct {
	gridRef string // with regionToken / geoidToken placeholders
	inverse bool
	layer   string
}

const (
	regionToken = "REGION"
	geoidToken  = "GEOID"
)

// datumDefinitions relates every supported named datum to the pivot. Read
// top to bottom each list walks from the pivot ellipsoid down to the datum;
// shared prefixes between two datums cancel during composition.
var datumDefinitions = map[string][]stepTemplate{
	"navd88": {
		{gridRef: geoidToken, layer: "geoid"},
	},
	"tss": {
		{gridRef: geoidToken, layer: "geoid"},
		{gridRef: regionToken + "/tss.gtx", inverse: true, layer: "tss"},
	},
	"mllw": {
		{gridRef: geoidToken, layer: "geoid"},
		{gridRef: regionToken + "/tss.gtx", inverse: true, layer: "tss"},
		{gridRef: regionToken + "/mllw.gtx", layer: "mllw"},
	},
	"mlw": {
		{gridRef: geoidToken, layer: "geoid"},
		{gridRef: regionToken + "/tss.gtx", inverse: true, layer: "tss"},
		{gridRef: regionToken + "/mlw.gtx", layer: "mlw"},
	},
	"mhw": {
		{gridRef: geoidToken, layer: "geoid"},
		{gridRef: regionToken + "/tss.gtx", inverse: true, layer: "tss"},
		{gridRef: regionToken + "/mhw.gtx", layer: "mhw"},
	},
	"mhhw": {
		{gridRef: geoidToken, layer: "geoid"},
		{gridRef: regionToken + "/tss.gtx", inverse: true, layer: "tss"},
		{gridRef: regionToken + "/mhhw.gtx", layer: "mhhw"},
	},
	"mtl": {
		{gridRef: geoidToken, layer: "geoid"},
		{gridRef: regionToken + "/tss.gtx", inverse: true, layer: "tss"},
		{gridRef: regionToken + "/mtl.gtx", layer: "mtl"},
	},
	"dtl": {
		{gridRef: geoidToken, layer: "geoid"},
		{gridRef: regionToken + "/tss.gtx", inverse: true, layer: "tss"},
		{gridRef: regionToken + "/dtl.gtx", layer: "dtl"},
	},
}

// datumAliases maps chart product names onto their underlying datums.
var datumAliases = map[string]string{
	"noaa chart datum":  "mllw",
	"noaa chart height": "mhw",
	"geoid":             "navd88",
}

func init() {
	for alias, target := range datumAliases {
		datumDefinitions[alias] = datumDefinitions[target]
	}
}

// SupportedDatums returns the sorted list of named datum identifiers.
func SupportedDatums() string {
	names := make([]string, 0, len(datumDefinitions))
	for name := range datumDefinitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
