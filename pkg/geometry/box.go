package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"
)

// OrientedBox is a possibly rotated rectangle given by its corners in order
// top-left, top-right, bottom-right, bottom-left of the unrotated shape.
type OrientedBox [4]r2.Vec

// NewOrientedBox builds the box of a w×h rectangle centred at c and rotated
// by theta radians.
func NewOrientedBox(c r2.Vec, w, h, theta float64) OrientedBox {
	hw, hh := w/2, h/2
	local := [4]r2.Vec{{X: -hw, Y: -hh}, {X: hw, Y: -hh}, {X: hw, Y: hh}, {X: -hw, Y: hh}}
	rot := Rotation(theta)
	var b OrientedBox
	for i, p := range local {
		b[i] = r2.Add(c, rot.ApplyVector(p))
	}
	return b
}

// OrientedBoxFromAABB converts an axis-aligned box into corner form.
func OrientedBoxFromAABB(b r2.Box) OrientedBox {
	return OrientedBox{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Max.Y},
	}
}

// Center returns the midpoint of the diagonals.
func (b OrientedBox) Center() r2.Vec {
	return Lerp(b[0], b[2], 0.5)
}

// Width returns the length of the top edge.
func (b OrientedBox) Width() float64 { return Distance(b[0], b[1]) }

// Height returns the length of the left edge.
func (b OrientedBox) Height() float64 { return Distance(b[0], b[3]) }

// Angle returns the direction of the top edge.
func (b OrientedBox) Angle() float64 { return Angle(r2.Sub(b[1], b[0])) }

// Transform returns the box with every corner mapped through t.
func (b OrientedBox) Transform(t AffineTransform) OrientedBox {
	var out OrientedBox
	for i, p := range b {
		out[i] = t.Apply(p)
	}
	return out
}

// AABB returns the axis-aligned box enclosing the corners.
func (b OrientedBox) AABB() r2.Box {
	return BoundingBox(b[:])
}

// Contains reports whether p lies inside the box.
func (b OrientedBox) Contains(p r2.Vec) bool {
	return PointInPolygon(p, b[:])
}

// Points returns the corners as a slice.
func (b OrientedBox) Points() []r2.Vec {
	return []r2.Vec{b[0], b[1], b[2], b[3]}
}

// BoundingBox computes the axis-aligned bounding box of a set of points.
// An empty input yields the zero box.
func BoundingBox(points []r2.Vec) r2.Box {
	if len(points) == 0 {
		return r2.Box{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	return r2.Box{Min: r2.Vec{X: minX, Y: minY}, Max: r2.Vec{X: maxX, Y: maxY}}
}

// BoundingBoxFlat is BoundingBox over a flat x,y coordinate sequence.
func BoundingBoxFlat(coords []float64) r2.Box {
	pts := make([]r2.Vec, 0, len(coords)/2)
	for i := 0; i+1 < len(coords); i += 2 {
		pts = append(pts, r2.Vec{X: coords[i], Y: coords[i+1]})
	}
	return BoundingBox(pts)
}

// UnionBox is r2.Box.Union that treats a zero box as empty.
func UnionBox(a, b r2.Box) r2.Box {
	if a == (r2.Box{}) {
		return b
	}
	if b == (r2.Box{}) {
		return a
	}
	return a.Union(b)
}

// Inflate grows b by d on every side.
func Inflate(b r2.Box, d float64) r2.Box {
	return r2.Box{
		Min: r2.Vec{X: b.Min.X - d, Y: b.Min.Y - d},
		Max: r2.Vec{X: b.Max.X + d, Y: b.Max.Y + d},
	}
}

// BoxContains reports whether p lies inside b, allowing tol on each edge.
// Unlike r2.Box.Contains it accepts degenerate boxes.
func BoxContains(b r2.Box, p r2.Vec, tol float64) bool {
	return p.X >= b.Min.X-tol && p.X <= b.Max.X+tol &&
		p.Y >= b.Min.Y-tol && p.Y <= b.Max.Y+tol
}

// BoxEqualWithin compares two boxes corner by corner.
func BoxEqualWithin(a, b r2.Box, tol float64) bool {
	return scalar.EqualWithinAbs(a.Min.X, b.Min.X, tol) &&
		scalar.EqualWithinAbs(a.Min.Y, b.Min.Y, tol) &&
		scalar.EqualWithinAbs(a.Max.X, b.Max.X, tol) &&
		scalar.EqualWithinAbs(a.Max.Y, b.Max.Y, tol)
}

// BoxIntersects reports whether two boxes overlap.
func BoxIntersects(a, b r2.Box) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y
}
