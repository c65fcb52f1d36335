package annotation

import (
	"math"

	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/pkg/geometry"
)

// cloudBulge is the control point offset of each scallop relative to its
// chord. Two controls at 2/3 of the chord length give a near-semicircle.
const cloudBulge = 2.0 / 3.0

// CloudPath turns the closed boundary pts into a scalloped path. Each edge
// is subdivided into pieces no longer than arc, and each piece is replaced
// by an outward cubic bulge. When arc <= 0 the plain polygon is returned,
// which is also the limit of the scallops as arc shrinks.
func CloudPath(pts []r2.Vec, arc float64) *gg.Path {
	if arc <= 0 || len(pts) < 2 {
		return polygonPath(pts)
	}

	// Bulge away from the interior whichever way the boundary winds.
	outward := 1.0
	if geometry.SignedArea(pts) < 0 {
		outward = -1.0
	}

	p := gg.NewPath()
	p.MoveTo(pts[0].X, pts[0].Y)
	n := len(pts)
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%n]
		length := geometry.Distance(a, b)
		if length < geometry.Epsilon {
			continue
		}
		steps := int(math.Ceil(length / arc))
		dir := r2.Scale(1/length, r2.Sub(b, a))
		// (dir.Y, -dir.X) points out of a positive-area boundary.
		normal := r2.Scale(outward, r2.Vec{X: dir.Y, Y: -dir.X})
		for s := 0; s < steps; s++ {
			from := geometry.Lerp(a, b, float64(s)/float64(steps))
			to := geometry.Lerp(a, b, float64(s+1)/float64(steps))
			h := cloudBulge * geometry.Distance(from, to)
			off := r2.Scale(h, normal)
			c1 := r2.Add(geometry.Lerp(from, to, 1.0/3), off)
			c2 := r2.Add(geometry.Lerp(from, to, 2.0/3), off)
			p.CubicTo(c1.X, c1.Y, c2.X, c2.Y, to.X, to.Y)
		}
	}
	p.Close()
	return p
}

// cloudPad is how far scallops of the given arc size reach beyond the
// straight boundary: the midpoint of each cubic sits at 3/4 of its control
// offset.
func cloudPad(arc float64) float64 {
	if arc <= 0 {
		return 0
	}
	return 0.75 * cloudBulge * arc
}

// ellipsePoints samples an ellipse with radii rx, ry centred at c and
// rotated by theta. The sample count follows the perimeter so that cloud
// scallops stay close to arc size.
func ellipsePoints(c r2.Vec, rx, ry, theta, arc float64) []r2.Vec {
	// Ramanujan's approximation.
	h := math.Pow(rx-ry, 2) / math.Max(math.Pow(rx+ry, 2), geometry.Epsilon)
	perimeter := math.Pi * (rx + ry) * (1 + 3*h/(10+math.Sqrt(4-3*h)))
	n := 64
	if arc > 0 {
		n = int(math.Max(8, math.Ceil(perimeter/arc)))
	}
	m := geometry.Translation(c.X, c.Y).Compose(geometry.Rotation(theta))
	pts := make([]r2.Vec, n)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = m.Apply(r2.Vec{X: rx * math.Cos(a), Y: ry * math.Sin(a)})
	}
	return pts
}
