package registry

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/coastalmapping/vdatum/internal/monitoring"
)

// sigmaFileName is the per-distribution uncertainty table. Each line reads
//
//	<region>.<source>.<target>=<value>
//
// with values in centimeters. The conus/ak navd88->nad83 rows carry the
// pivot geoid uncertainty; navd88->lmsl rows carry the tss layer; lmsl->X
// rows carry the tidal layer X.
const sigmaFileName = "vdatum_sigma.inf"

type sigmaTable struct {
	geoids  map[string]float64            // geoid name -> meters
	regions map[string]map[string]float64 // lowercase region -> layer -> meters
}

func newSigmaTable() sigmaTable {
	return sigmaTable{
		geoids:  make(map[string]float64),
		regions: make(map[string]map[string]float64),
	}
}

// geoid returns the pivot geoid uncertainty in meters, zero if unlisted.
func (s sigmaTable) geoid(name string) float64 { return s.geoids[name] }

// forRegion returns the layer uncertainties for a region in meters. The map
// may be empty; unlisted layers contribute zero uncertainty.
func (s sigmaTable) forRegion(regionID string) map[string]float64 {
	m := s.regions[strings.ToLower(regionID)]
	if m == nil {
		m = map[string]float64{}
	}
	return m
}

// loadSigma parses the sigma table. A missing file is tolerated with zero
// uncertainties everywhere; a malformed file is an error.
func loadSigma(path string) (sigmaTable, error) {
	table := newSigmaTable()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			monitoring.Logf("registry: no %s found, uncertainties default to zero", sigmaFileName)
			return table, nil
		}
		return table, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, valText, found := strings.Cut(line, "=")
		if !found {
			return table, fmt.Errorf("%s:%d: expected key=value", sigmaFileName, lineNo)
		}
		parts := strings.Split(strings.TrimSpace(key), ".")
		if len(parts) != 3 {
			return table, fmt.Errorf("%s:%d: expected region.source.target key, got %q", sigmaFileName, lineNo, key)
		}
		cm, err := strconv.ParseFloat(strings.TrimSpace(valText), 64)
		if err != nil {
			return table, fmt.Errorf("%s:%d: bad value %q", sigmaFileName, lineNo, valText)
		}
		meters := cm * 0.01

		region := strings.ToLower(parts[0])
		source := strings.ToLower(parts[1])
		target := strings.ToLower(parts[2])

		// conus/ak rows describe the pivot geoids rather than a region
		if source == "navd88" && target == "nad83" {
			switch region {
			case "conus":
				table.geoids["geoid12b"] = meters
			case "ak":
				table.geoids["xgeoid18b"] = meters
			}
			continue
		}

		layer := ""
		switch {
		case source == "navd88" && target == "lmsl":
			layer = "tss"
		case source == "lmsl":
			layer = target
		default:
			continue // relation not on the pivot path, unused
		}
		if table.regions[region] == nil {
			table.regions[region] = make(map[string]float64)
		}
		table.regions[region][layer] = meters
	}
	return table, scanner.Err()
}
