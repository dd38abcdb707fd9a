package geo

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// The distribution ships one KML file per region describing its coverage
// footprint. Only the polygon geometry is needed; styling and metadata are
// ignored. Placemarks whose name starts with "valid-transform" mark the
// rings that define usable coverage, matching the distribution convention.

const validTransformPrefix = "valid-transform"

type kmlDoc struct {
	Placemarks []kmlPlacemark `xml:"Document>Placemark"`
	// Some files nest placemarks inside folders.
	FolderPlacemarks []kmlPlacemark `xml:"Document>Folder>Placemark"`
}

type kmlPlacemark struct {
	Name     string       `xml:"name"`
	Polygons []kmlPolygon `xml:"Polygon"`
	// MultiGeometry wraps several polygons in one placemark.
	MultiPolygons []kmlPolygon `xml:"MultiGeometry>Polygon"`
}

type kmlPolygon struct {
	Outer kmlRing   `xml:"outerBoundaryIs>LinearRing"`
	Inner []kmlRing `xml:"innerBoundaryIs>LinearRing"`
}

type kmlRing struct {
	Coordinates string `xml:"coordinates"`
}

// ParseKMLFile reads the region footprint polygons from a KML file.
func ParseKMLFile(path string) ([]Polygon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	polys, err := ParseKML(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return polys, nil
}

// ParseKML decodes KML from r and returns the coverage polygons. If any
// placemark is tagged with the valid-transform prefix only those are
// returned; otherwise every polygon in the file counts as coverage.
func ParseKML(r io.Reader) ([]Polygon, error) {
	var doc kmlDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	placemarks := append(doc.Placemarks, doc.FolderPlacemarks...)

	var tagged, all []Polygon
	for _, pm := range placemarks {
		kpolys := append(pm.Polygons, pm.MultiPolygons...)
		for _, kp := range kpolys {
			poly, err := kp.toPolygon()
			if err != nil {
				return nil, err
			}
			all = append(all, poly)
			if strings.HasPrefix(pm.Name, validTransformPrefix) {
				tagged = append(tagged, poly)
			}
		}
	}
	if len(tagged) > 0 {
		return tagged, nil
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no polygon geometry found")
	}
	return all, nil
}

func (kp kmlPolygon) toPolygon() (Polygon, error) {
	outer, err := parseCoordinates(kp.Outer.Coordinates)
	if err != nil {
		return Polygon{}, err
	}
	poly := Polygon{Outer: outer}
	for _, in := range kp.Inner {
		hole, err := parseCoordinates(in.Coordinates)
		if err != nil {
			return Polygon{}, err
		}
		poly.Holes = append(poly.Holes, hole)
	}
	return poly, nil
}

// parseCoordinates handles the KML coordinate list format: whitespace
// separated tuples of lon,lat[,alt].
func parseCoordinates(s string) (Ring, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return nil, fmt.Errorf("ring has %d vertices, need at least 3", len(fields))
	}
	ring := make(Ring, 0, len(fields))
	for _, field := range fields {
		parts := strings.Split(field, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("malformed coordinate tuple %q", field)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed longitude %q: %w", parts[0], err)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed latitude %q: %w", parts[1], err)
		}
		ring = append(ring, Point{X: lon, Y: lat})
	}
	// drop an explicit closing vertex so Area and crossing counts do not
	// double-count the first edge
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	return ring, nil
}
