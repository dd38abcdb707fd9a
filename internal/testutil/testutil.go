// Package testutil builds on-disk grid distribution fixtures for tests.
//
// This package centralises the distribution layout knowledge so individual
// test files do not each hand-assemble region directories, footprints and
// sigma tables.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content under base, creating parent directories.
func WriteFile(t *testing.T, base, rel, content string) {
	t.Helper()
	path := filepath.Join(base, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

// WritePivotGeoid places the CONUS pivot grid the registry requires.
func WritePivotGeoid(t *testing.T, base string) {
	t.Helper()
	WriteFile(t, base, "core/geoid12b/g2012bu0.gtx", "grid")
}

// WriteRegion creates a region directory with the named grid files and a
// rectangular valid-transform footprint.
func WriteRegion(t *testing.T, base, id string, minX, minY, maxX, maxY float64, grids ...string) {
	t.Helper()
	for _, g := range grids {
		WriteFile(t, base, id+"/"+g, "grid")
	}
	kml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
 <Document>
  <Placemark>
   <name>valid-transform region</name>
   <Polygon><outerBoundaryIs><LinearRing><coordinates>
    %[1]f,%[2]f,0 %[3]f,%[2]f,0 %[3]f,%[4]f,0 %[1]f,%[4]f,0 %[1]f,%[2]f,0
   </coordinates></LinearRing></outerBoundaryIs></Polygon>
  </Placemark>
 </Document>
</kml>`, minX, minY, maxX, maxY)
	WriteFile(t, base, id+"/"+id+".kml", kml)
}

// StandardRegionID is the region used by the single-region fixture.
const StandardRegionID = "CAORblan01_8301"

// WriteStandardDistribution builds a one-region distribution covering the
// box (-125, 42)..(-123, 44) with geoid/tss/mllw uncertainties of
// 0.05/0.014/0.021 m and version vdatum_4.2, and returns its base path.
func WriteStandardDistribution(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	WritePivotGeoid(t, base)
	WriteRegion(t, base, StandardRegionID, -125, 42, -123, 44, "tss.gtx", "mllw.gtx", "mhw.gtx")
	WriteFile(t, base, "vdatum_sigma.inf", `conus.navd88.nad83=5.0
`+StandardRegionID+`.navd88.lmsl=1.4
`+StandardRegionID+`.lmsl.mllw=2.1
`+StandardRegionID+`.lmsl.mhw=1.8
`)
	WriteFile(t, base, "vdatum_vyperversion.txt", "vdatum_4.2\n")
	return base
}
