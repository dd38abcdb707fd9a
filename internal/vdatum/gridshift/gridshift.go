// Package gridshift applies gridded vertical corrections to coordinates.
//
// The Shifter interface is the seam between the pipeline machinery and the
// grid sampling math: a Shifter is handed a grid reference (a path relative
// to the distribution root) and a geographic coordinate, and returns the
// separation value the grid holds at that coordinate. Directionality is the
// caller's concern; a forward step adds the value, an inverse step subtracts
// it.
package gridshift

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/coastalmapping/vdatum/internal/security"
)

// ErrOutsideGrid reports that the requested coordinate is not covered by the
// grid. Callers treat this as an out-of-coverage condition, not a failure.
var ErrOutsideGrid = errors.New("coordinate outside grid extent")

// Shifter samples a named correction grid at a coordinate.
type Shifter interface {
	// Shift returns the grid separation value in metres at (lon, lat).
	// lon and lat are decimal degrees on the pivot frame.
	Shift(gridRef string, lon, lat float64) (float64, error)
}

// gtxNoData is the conventional missing-value marker in GTX grids.
const gtxNoData = -88.8888

// GTXShifter reads NOAA GTX binary vertical grids from a distribution
// directory and samples them with bilinear interpolation. Parsed grids are
// cached for the life of the shifter; the cache is safe for concurrent use.
type GTXShifter struct {
	basePath string

	mu    sync.RWMutex
	grids map[string]*gtxGrid
}

// NewGTXShifter returns a shifter rooted at the distribution directory.
func NewGTXShifter(basePath string) *GTXShifter {
	return &GTXShifter{
		basePath: basePath,
		grids:    make(map[string]*gtxGrid),
	}
}

// Shift implements Shifter.
func (s *GTXShifter) Shift(gridRef string, lon, lat float64) (float64, error) {
	g, err := s.grid(gridRef)
	if err != nil {
		return 0, err
	}
	return g.sample(lon, lat)
}

func (s *GTXShifter) grid(gridRef string) (*gtxGrid, error) {
	s.mu.RLock()
	g, ok := s.grids[gridRef]
	s.mu.RUnlock()
	if ok {
		return g, nil
	}

	// grid references can originate from parsed remark text, so they are
	// validated against the distribution root before hitting the filesystem
	path, err := security.ResolveWithin(s.basePath, gridRef)
	if err != nil {
		return nil, err
	}
	g, err = loadGTX(path)
	if err != nil {
		return nil, fmt.Errorf("load grid %s: %w", gridRef, err)
	}
	s.mu.Lock()
	s.grids[gridRef] = g
	s.mu.Unlock()
	return g, nil
}

// gtxGrid is one parsed GTX file. Values are row-major from the south-west
// corner, rows running south to north.
type gtxGrid struct {
	llLat, llLon float64 // south-west corner
	dLat, dLon   float64 // cell size in degrees
	rows, cols   int
	values       []float32
}

// loadGTX parses the GTX binary layout: four big-endian float64 header
// fields (lat, lon of the lower-left corner, then the lat and lon cell
// sizes), two big-endian int32 dimensions, then rows*cols big-endian
// float32 separation values.
func loadGTX(path string) (*gtxGrid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	const headerLen = 4*8 + 2*4
	if len(data) < headerLen {
		return nil, fmt.Errorf("truncated header: %d bytes", len(data))
	}
	g := &gtxGrid{
		llLat: math.Float64frombits(binary.BigEndian.Uint64(data[0:])),
		llLon: math.Float64frombits(binary.BigEndian.Uint64(data[8:])),
		dLat:  math.Float64frombits(binary.BigEndian.Uint64(data[16:])),
		dLon:  math.Float64frombits(binary.BigEndian.Uint64(data[24:])),
		rows:  int(int32(binary.BigEndian.Uint32(data[32:]))),
		cols:  int(int32(binary.BigEndian.Uint32(data[36:]))),
	}
	if g.rows <= 0 || g.cols <= 0 || g.dLat <= 0 || g.dLon <= 0 {
		return nil, fmt.Errorf("invalid header: rows=%d cols=%d dlat=%g dlon=%g",
			g.rows, g.cols, g.dLat, g.dLon)
	}
	n := g.rows * g.cols
	if len(data) < headerLen+4*n {
		return nil, fmt.Errorf("truncated data: have %d values, want %d",
			(len(data)-headerLen)/4, n)
	}
	g.values = make([]float32, n)
	for i := 0; i < n; i++ {
		g.values[i] = math.Float32frombits(binary.BigEndian.Uint32(data[headerLen+4*i:]))
	}
	return g, nil
}

// sample bilinearly interpolates the grid at (lon, lat). Grids published
// with 0..360 longitude are handled by normalising the query longitude into
// the grid's own range.
func (g *gtxGrid) sample(lon, lat float64) (float64, error) {
	lon = g.normalizeLon(lon)

	col := (lon - g.llLon) / g.dLon
	row := (lat - g.llLat) / g.dLat
	if col < 0 || row < 0 || col > float64(g.cols-1) || row > float64(g.rows-1) {
		return 0, ErrOutsideGrid
	}

	c0 := int(math.Floor(col))
	r0 := int(math.Floor(row))
	c1 := c0 + 1
	r1 := r0 + 1
	if c1 > g.cols-1 {
		c1 = g.cols - 1
	}
	if r1 > g.rows-1 {
		r1 = g.rows - 1
	}
	fx := col - float64(c0)
	fy := row - float64(r0)

	v00 := g.at(r0, c0)
	v10 := g.at(r0, c1)
	v01 := g.at(r1, c0)
	v11 := g.at(r1, c1)
	for _, v := range []float64{v00, v10, v01, v11} {
		if isNoData(v) {
			return 0, ErrOutsideGrid
		}
	}

	top := v00*(1-fx) + v10*fx
	bot := v01*(1-fx) + v11*fx
	return top*(1-fy) + bot*fy, nil
}

func (g *gtxGrid) at(row, col int) float64 {
	return float64(g.values[row*g.cols+col])
}

func (g *gtxGrid) normalizeLon(lon float64) float64 {
	maxLon := g.llLon + float64(g.cols-1)*g.dLon
	for lon < g.llLon && lon+360 <= maxLon {
		lon += 360
	}
	for lon > maxLon && lon-360 >= g.llLon {
		lon -= 360
	}
	return lon
}

func isNoData(v float64) bool {
	return math.Abs(v-gtxNoData) < 1e-3 || math.IsInf(v, 0) || math.IsNaN(v)
}
