package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// PointInPolygon tests if a point is inside a polygon using ray casting.
func PointInPolygon(p r2.Vec, polygon []r2.Vec) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := polygon[i], polygon[j]

		// Check if ray from p going right intersects edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}

	return inside
}

// DistanceToSegment returns the distance from p to the segment a-b.
func DistanceToSegment(p, a, b r2.Vec) float64 {
	ab := r2.Sub(b, a)
	l2 := r2.Norm2(ab)
	if l2 < Epsilon {
		return Distance(p, a)
	}
	t := r2.Dot(r2.Sub(p, a), ab) / l2
	t = math.Max(0, math.Min(1, t))
	return Distance(p, r2.Add(a, r2.Scale(t, ab)))
}

// DistanceToPolyline returns the smallest distance from p to any segment of
// pts. If closed, the last point connects back to the first.
func DistanceToPolyline(p r2.Vec, pts []r2.Vec, closed bool) float64 {
	switch len(pts) {
	case 0:
		return math.Inf(1)
	case 1:
		return Distance(p, pts[0])
	}
	best := math.Inf(1)
	for i := 0; i+1 < len(pts); i++ {
		best = math.Min(best, DistanceToSegment(p, pts[i], pts[i+1]))
	}
	if closed {
		best = math.Min(best, DistanceToSegment(p, pts[len(pts)-1], pts[0]))
	}
	return best
}

// SignedArea returns the shoelace area; positive for clockwise order on a
// Y-down screen.
func SignedArea(polygon []r2.Vec) float64 {
	var sum float64
	n := len(polygon)
	for i := 0; i < n; i++ {
		sum += r2.Cross(polygon[i], polygon[(i+1)%n])
	}
	return sum / 2
}

// FlatToPoints converts x0,y0,x1,y1,... into points.
func FlatToPoints(coords []float64) []r2.Vec {
	pts := make([]r2.Vec, 0, len(coords)/2)
	for i := 0; i+1 < len(coords); i += 2 {
		pts = append(pts, r2.Vec{X: coords[i], Y: coords[i+1]})
	}
	return pts
}

// PointsToFlat is the inverse of FlatToPoints.
func PointsToFlat(pts []r2.Vec) []float64 {
	out := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		out = append(out, p.X, p.Y)
	}
	return out
}
