package spatial

import (
	"sort"

	"github.com/paulmach/orb"
)

// ConvexHull returns the convex hull of points as an open ring (the first
// point is not repeated at the end), counter-clockwise from the left-most
// point. Duplicate points are ignored.
//
// Degenerate input does not fail: a single distinct point yields a
// one-point ring and collinear points yield the two extreme points.
func ConvexHull(points []orb.Point) (orb.Ring, error) {
	if len(points) == 0 {
		return nil, ErrDegenerateGeometry
	}

	sorted := uniquePoints(points)
	if len(sorted) <= 2 {
		return orb.Ring(sorted), nil
	}

	// Andrew's monotone chain. A chain keeps only strict left turns, so
	// collinear points are dropped.
	lower := make([]orb.Point, 0, len(sorted))
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}

	upper := make([]orb.Point, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	hull := make(orb.Ring, 0, len(lower)+len(upper)-2)
	hull = append(hull, lower[:len(lower)-1]...)
	hull = append(hull, upper[:len(upper)-1]...)
	return hull, nil
}

// cross is the z component of (a-o) x (b-o); positive for a left turn.
func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// uniquePoints returns the distinct points sorted by x, then y.
func uniquePoints(points []orb.Point) []orb.Point {
	sorted := make([]orb.Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})

	out := sorted[:1]
	for _, p := range sorted[1:] {
		if !p.Equal(out[len(out)-1]) {
			out = append(out, p)
		}
	}
	return out
}
