package spatial

import (
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// HaversineDistance calculates the great-circle distance between two points in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Distance returns the great-circle distance between p and q in meters
func (p Point) Distance(q Point) float64 {
	return HaversineDistance(p.Lat, p.Lon, q.Lat, q.Lon)
}

// PlaneOrigin returns the south-west corner of the points, used as the
// local origin when projecting onto a plane.
func PlaneOrigin(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	minLat, minLon, _, _ := BoundingBox(points)
	return Point{Lat: minLat, Lon: minLon}
}

// ToPlane projects lat/lng points onto a local x/y plane measured in meters
// from origin. x follows the parallel through the origin, y the meridian.
// Only valid for small extents such as a single visit cluster.
func ToPlane(points []Point, origin Point) []orb.Point {
	out := make([]orb.Point, len(points))
	for i, p := range points {
		y := HaversineDistance(p.Lat, origin.Lon, origin.Lat, origin.Lon)
		x := HaversineDistance(origin.Lat, p.Lon, origin.Lat, origin.Lon)
		out[i] = orb.Point{x, y}
	}
	return out
}

// EarthRadiusMeters is the Earth's mean radius.
const EarthRadiusMeters = 6371000.0
