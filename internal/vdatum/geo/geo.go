// Package geo provides the planar geometry used to match geographic
// coordinates against region coverage footprints. Footprints are small
// enough that treating lon/lat as planar coordinates is adequate; the
// distribution's own polygons are defined the same way.
package geo

import "math"

// Point is a geographic coordinate in decimal degrees, x=longitude, y=latitude.
type Point struct {
	X float64
	Y float64
}

// Ring is a closed sequence of vertices. The closing vertex may be repeated
// or omitted; both forms are handled.
type Ring []Point

// Polygon is an outer ring plus optional interior holes.
type Polygon struct {
	Outer Ring
	Holes []Ring
}

// BoundingBox is an axis-aligned lon/lat extent.
type BoundingBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// Contains reports whether p is inside or on the edge of the box.
func (b BoundingBox) Contains(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// Bounds returns the bounding box of the ring. An empty ring yields a box
// that contains nothing.
func (r Ring) Bounds() BoundingBox {
	if len(r) == 0 {
		return BoundingBox{MinX: 1, MaxX: -1, MinY: 1, MaxY: -1}
	}
	b := BoundingBox{MinX: r[0].X, MaxX: r[0].X, MinY: r[0].Y, MaxY: r[0].Y}
	for _, p := range r[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// Area returns the unsigned shoelace area of the ring in square degrees.
func (r Ring) Area() float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += r[i].X*r[j].Y - r[j].X*r[i].Y
	}
	return math.Abs(sum) / 2
}

// Area returns the polygon area: outer ring area minus hole areas.
func (pg Polygon) Area() float64 {
	a := pg.Outer.Area()
	for _, h := range pg.Holes {
		a -= h.Area()
	}
	if a < 0 {
		return 0
	}
	return a
}

// Bounds returns the bounding box of the outer ring.
func (pg Polygon) Bounds() BoundingBox {
	return pg.Outer.Bounds()
}

// Contains reports whether p lies inside the polygon. Points exactly on the
// boundary count as inside; points inside a hole do not.
func (pg Polygon) Contains(p Point) bool {
	if !pg.Outer.contains(p) {
		return false
	}
	for _, h := range pg.Holes {
		if h.strictlyContains(p) {
			return false
		}
	}
	return true
}

// contains uses the even-odd crossing rule with an explicit edge test so the
// boundary is inclusive.
func (r Ring) contains(p Point) bool {
	if r.onEdge(p) {
		return true
	}
	return r.crossings(p)%2 == 1
}

// strictlyContains excludes the boundary.
func (r Ring) strictlyContains(p Point) bool {
	if r.onEdge(p) {
		return false
	}
	return r.crossings(p)%2 == 1
}

func (r Ring) crossings(p Point) int {
	n := len(r)
	count := 0
	for i := 0; i < n; i++ {
		a := r[i]
		b := r[(i+1)%n]
		if (a.Y > p.Y) == (b.Y > p.Y) {
			continue
		}
		// x coordinate where the edge crosses the horizontal through p
		xc := a.X + (p.Y-a.Y)/(b.Y-a.Y)*(b.X-a.X)
		if xc > p.X {
			count++
		}
	}
	return count
}

const edgeEpsilon = 1e-12

func (r Ring) onEdge(p Point) bool {
	n := len(r)
	for i := 0; i < n; i++ {
		a := r[i]
		b := r[(i+1)%n]
		if onSegment(a, b, p) {
			return true
		}
	}
	return false
}

func onSegment(a, b, p Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > edgeEpsilon {
		return false
	}
	dot := (p.X-a.X)*(b.X-a.X) + (p.Y-a.Y)*(b.Y-a.Y)
	if dot < -edgeEpsilon {
		return false
	}
	lenSq := (b.X-a.X)*(b.X-a.X) + (b.Y-a.Y)*(b.Y-a.Y)
	return dot <= lenSq+edgeEpsilon
}
