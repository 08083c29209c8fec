package spatial

import (
	"math"

	"github.com/paulmach/orb"
)

// DefaultGridSize is the number of samples per axis used by the
// grid-sampling estimators. Results are accurate to roughly 2%.
const DefaultGridSize = 100

// PointInPolygon reports whether pt lies inside polygon using the even-odd
// ray casting rule. bound may carry the polygon's precomputed bounding box
// so that hot loops do not recompute it; nil computes it on demand.
func PointInPolygon(pt orb.Point, polygon orb.Ring, bound *orb.Bound) bool {
	if len(polygon) < 3 {
		return false
	}

	var b orb.Bound
	if bound != nil {
		b = *bound
	} else {
		b = polygon.Bound()
	}
	if pt[0] < b.Min[0] || pt[0] > b.Max[0] || pt[1] < b.Min[1] || pt[1] > b.Max[1] {
		return false
	}

	inside := false
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		a, t := polygon[i], polygon[j]
		if (a[1] <= pt[1] && pt[1] < t[1]) || (t[1] <= pt[1] && pt[1] < a[1]) {
			if pt[0] < (t[0]-a[0])*(pt[1]-a[1])/(t[1]-a[1])+a[0] {
				inside = !inside
			}
		}
		j = i
	}

	return inside
}

// PolygonArea estimates the area of polygon by sampling a size x size grid
// over its bounding box and scaling the fraction of samples inside by the
// bounding box area. size <= 0 uses DefaultGridSize.
func PolygonArea(polygon orb.Ring, size int) float64 {
	if len(polygon) < 3 {
		return 0
	}
	size = gridSize(size)

	b := polygon.Bound()
	width, height := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	if width <= 0 || height <= 0 {
		return 0
	}

	within := 0
	eachSample(b, size, func(pt orb.Point) {
		if PointInPolygon(pt, polygon, &b) {
			within++
		}
	})

	return float64(within) / float64(size*size) * width * height
}

// PolygonOverlap estimates the fraction of p1 that is also covered by p2,
// sampling a grid over the union of both bounding boxes. Polygons whose
// bounding boxes are disjoint return 0 without sampling.
func PolygonOverlap(p1, p2 orb.Ring, size int) float64 {
	if len(p1) == 0 || len(p2) == 0 {
		return 0
	}
	size = gridSize(size)

	b1, b2 := p1.Bound(), p2.Bound()
	if !b1.Intersects(b2) {
		return 0
	}

	within1, withinBoth := 0, 0
	eachSample(b1.Union(b2), size, func(pt orb.Point) {
		if !PointInPolygon(pt, p1, &b1) {
			return
		}
		within1++
		if PointInPolygon(pt, p2, &b2) {
			withinBoth++
		}
	})

	if within1 == 0 {
		return 0
	}
	return float64(withinBoth) / float64(within1)
}

// eachSample calls fn for the centre of every cell of a size x size grid
// laid over b.
func eachSample(b orb.Bound, size int, fn func(orb.Point)) {
	dx := (b.Max[0] - b.Min[0]) / float64(size)
	dy := (b.Max[1] - b.Min[1]) / float64(size)
	for i := 0; i < size; i++ {
		x := b.Min[0] + (float64(i)+0.5)*dx
		for j := 0; j < size; j++ {
			fn(orb.Point{x, b.Min[1] + (float64(j)+0.5)*dy})
		}
	}
}

func gridSize(size int) int {
	if size <= 0 {
		return DefaultGridSize
	}
	return size
}

// Centroid returns the area-weighted centroid of the convex hull of points.
// It falls back to the arithmetic mean when the hull degenerates (fewer
// than four distinct points, all points sharing one coordinate, or a
// near-zero signed area).
func Centroid(points []orb.Point) (orb.Point, error) {
	if len(points) == 0 {
		return orb.Point{}, ErrDegenerateGeometry
	}

	unique := uniquePoints(points)
	if len(unique) < 4 || sameAxis(unique) {
		return meanPoint(unique), nil
	}

	hull, err := ConvexHull(unique)
	if err != nil {
		return orb.Point{}, err
	}

	// Work relative to the first vertex to keep the cross products small.
	o := hull[0]
	var cx, cy, signedArea float64
	for i := range hull {
		p0, p1 := hull[i], hull[(i+1)%len(hull)]
		x0, y0 := p0[0]-o[0], p0[1]-o[1]
		x1, y1 := p1[0]-o[0], p1[1]-o[1]
		a := x0*y1 - x1*y0
		signedArea += a
		cx += (x0 + x1) * a
		cy += (y0 + y1) * a
	}
	signedArea *= 0.5

	if math.Abs(signedArea) < 1e-12 {
		return meanPoint(unique), nil
	}

	return orb.Point{o[0] + cx/(6*signedArea), o[1] + cy/(6*signedArea)}, nil
}

func sameAxis(points []orb.Point) bool {
	sameX, sameY := true, true
	for _, p := range points[1:] {
		if p[0] != points[0][0] {
			sameX = false
		}
		if p[1] != points[0][1] {
			sameY = false
		}
	}
	return sameX || sameY
}

func meanPoint(points []orb.Point) orb.Point {
	var sx, sy float64
	for _, p := range points {
		sx += p[0]
		sy += p[1]
	}
	n := float64(len(points))
	return orb.Point{sx / n, sy / n}
}
