package cluster

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/jengzang/landuse-tree/internal/spatial"
)

// Shape is an ordered ring of lat/lng points, or a single point.
type Shape []spatial.Point

// Equal reports whether both shapes have the same points in the same order.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Key returns a string identifying the shape's points and their order.
func (s Shape) Key() string {
	var b strings.Builder
	for i, p := range s {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(p.Lat, 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(p.Lon, 'g', -1, 64))
	}
	return b.String()
}

func (s Shape) ring() orb.Ring {
	return orb.Ring(spatial.Degrees(s))
}

// Intersects reports whether two shapes touch. Two points intersect when
// they are equal, a point intersects a ring it lies inside, and two rings
// intersect when they share a vertex or overlap on the sampling grid.
func (s Shape) Intersects(o Shape, gridSize int) bool {
	if len(s) == 0 || len(o) == 0 {
		return false
	}

	switch {
	case len(s) == 1 && len(o) == 1:
		return s[0] == o[0]
	case len(s) == 1:
		return spatial.PointInPolygon(orb.Point{s[0].Lon, s[0].Lat}, o.ring(), nil)
	case len(o) == 1:
		return spatial.PointInPolygon(orb.Point{o[0].Lon, o[0].Lat}, s.ring(), nil)
	}

	vertices := make(map[spatial.Point]struct{}, len(s))
	for _, p := range s {
		vertices[p] = struct{}{}
	}
	for _, p := range o {
		if _, ok := vertices[p]; ok {
			return true
		}
	}

	return spatial.PolygonOverlap(s.ring(), o.ring(), gridSize) > 0
}

// mergeShapes replaces any two intersecting shapes with the convex hull of
// their union until no pair intersects.
func mergeShapes(shapes []Shape, gridSize int) ([]Shape, error) {
	out := make([]Shape, 0, len(shapes))
	for _, s := range shapes {
		if len(s) == 0 || containsShape(out, s) {
			continue
		}
		out = append(out, s)
	}

	for {
		i, j, found := intersectingPair(out, gridSize)
		if !found {
			return out, nil
		}

		union := make([]spatial.Point, 0, len(out[i])+len(out[j]))
		union = append(union, out[i]...)
		union = append(union, out[j]...)
		hull, err := spatial.LocationHull(union)
		if err != nil {
			return nil, err
		}

		next := make([]Shape, 0, len(out)-1)
		for k, s := range out {
			if k != i && k != j {
				next = append(next, s)
			}
		}
		merged := Shape(hull)
		if !containsShape(next, merged) {
			next = append(next, merged)
		}
		out = next
	}
}

func intersectingPair(shapes []Shape, gridSize int) (int, int, bool) {
	for i := 0; i < len(shapes); i++ {
		for j := i + 1; j < len(shapes); j++ {
			if shapes[i].Intersects(shapes[j], gridSize) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func containsShape(shapes []Shape, s Shape) bool {
	for _, o := range shapes {
		if o.Equal(s) {
			return true
		}
	}
	return false
}
