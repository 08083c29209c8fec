package spatial

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Point represents a 2D point with latitude and longitude
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// LocationMean calculates the arithmetic mean of a set of points
func LocationMean(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}

	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
	}

	return Point{
		Lat: sumLat / float64(len(points)),
		Lon: sumLon / float64(len(points)),
	}
}

// BoundingBox calculates the bounding box of a set of points
// Returns (minLat, minLon, maxLat, maxLon)
func BoundingBox(points []Point) (float64, float64, float64, float64) {
	if len(points) == 0 {
		return 0, 0, 0, 0
	}

	minLat, maxLat := points[0].Lat, points[0].Lat
	minLon, maxLon := points[0].Lon, points[0].Lon

	for _, p := range points[1:] {
		if p.Lat < minLat {
			minLat = p.Lat
		}
		if p.Lat > maxLat {
			maxLat = p.Lat
		}
		if p.Lon < minLon {
			minLon = p.Lon
		}
		if p.Lon > maxLon {
			maxLon = p.Lon
		}
	}

	return minLat, minLon, maxLat, maxLon
}

// LocationArea estimates the area in square meters of the convex hull of
// a set of lat/lng points. Fewer than three points have no area.
func LocationArea(points []Point, size int) float64 {
	if len(points) < 3 {
		return 0
	}
	hull, err := ConvexHull(ToPlane(points, PlaneOrigin(points)))
	if err != nil {
		return 0
	}
	return PolygonArea(hull, size)
}

// LocationHull returns the convex hull of a set of lat/lng points, computed
// directly in degree space (x = longitude, y = latitude).
func LocationHull(points []Point) ([]Point, error) {
	hull, err := ConvexHull(Degrees(points))
	if err != nil {
		return nil, err
	}
	out := make([]Point, len(hull))
	for i, p := range hull {
		out[i] = Point{Lat: p[1], Lon: p[0]}
	}
	return out, nil
}

// LocationCentroid determines the centroid of the convex hull of a set of
// lat/lng points, falling back to the mean of the distinct points when the
// hull would be degenerate.
func LocationCentroid(points []Point) (Point, error) {
	if len(points) == 0 {
		return Point{}, ErrDegenerateGeometry
	}

	c, err := Centroid(Degrees(points))
	if err != nil {
		return Point{}, err
	}
	if math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		return Point{}, fmt.Errorf("%w: centroid of %d points is undefined", ErrDegenerateGeometry, len(points))
	}

	return Point{Lat: c[1], Lon: c[0]}, nil
}

// Degrees maps lat/lng points straight onto the plane without projection.
func Degrees(points []Point) []orb.Point {
	out := make([]orb.Point, len(points))
	for i, p := range points {
		out[i] = orb.Point{p.Lon, p.Lat}
	}
	return out
}
