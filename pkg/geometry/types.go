// Package geometry provides the affine algebra and box helpers shared by the
// annotation model, coordinate conversion and gesture handling.
//
// Points are gonum r2.Vec values. Transforms are 2x3 affine matrices:
//
//	[a b tx]
//	[c d ty]
package geometry

import (
	"math"

	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"
)

// Epsilon is the tolerance used for geometric comparisons.
const Epsilon = 1e-9

// AffineTransform represents a 2x3 affine transformation matrix.
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// Identity returns the identity transform.
func Identity() AffineTransform {
	return AffineTransform{A: 1, D: 1}
}

// Translation returns a translation transform.
func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, D: 1, TX: tx, TY: ty}
}

// TranslationVec returns a translation by v.
func TranslationVec(v r2.Vec) AffineTransform {
	return Translation(v.X, v.Y)
}

// Rotation returns a rotation transform around the origin. Positive angles
// turn +X towards +Y, which is clockwise on screen where Y grows downwards.
func Rotation(radians float64) AffineTransform {
	cos := math.Cos(radians)
	sin := math.Sin(radians)
	return AffineTransform{A: cos, B: -sin, C: sin, D: cos}
}

// Scale returns a scaling transform.
func Scale(sx, sy float64) AffineTransform {
	return AffineTransform{A: sx, D: sy}
}

// About conjugates t by a translation so that it acts around pivot:
// translate pivot to the origin, apply t, translate back.
func About(pivot r2.Vec, t AffineTransform) AffineTransform {
	return Translation(pivot.X, pivot.Y).
		Compose(t).
		Compose(Translation(-pivot.X, -pivot.Y))
}

// RotationAbout returns a rotation by radians around pivot.
func RotationAbout(pivot r2.Vec, radians float64) AffineTransform {
	return About(pivot, Rotation(radians))
}

// ScaleAbout returns a scale around pivot.
func ScaleAbout(pivot r2.Vec, sx, sy float64) AffineTransform {
	return About(pivot, Scale(sx, sy))
}

// OrientedScaleAbout scales by sx, sy along axes rotated by theta, keeping
// pivot fixed: T(p)·R(θ)·S·R(−θ)·T(−p).
func OrientedScaleAbout(pivot r2.Vec, theta, sx, sy float64) AffineTransform {
	return About(pivot, Rotation(theta).Compose(Scale(sx, sy)).Compose(Rotation(-theta)))
}

// Apply applies the transform to a point.
func (t AffineTransform) Apply(p r2.Vec) r2.Vec {
	return r2.Vec{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// ApplyVector applies only the linear part of the transform.
func (t AffineTransform) ApplyVector(v r2.Vec) r2.Vec {
	return r2.Vec{
		X: t.A*v.X + t.B*v.Y,
		Y: t.C*v.X + t.D*v.Y,
	}
}

// ApplyAll transforms a slice of points in place.
func (t AffineTransform) ApplyAll(pts []r2.Vec) {
	for i, p := range pts {
		pts[i] = t.Apply(p)
	}
}

// ApplyFlat transforms a flat x0,y0,x1,y1,... coordinate sequence in place.
func (t AffineTransform) ApplyFlat(coords []float64) {
	for i := 0; i+1 < len(coords); i += 2 {
		p := t.Apply(r2.Vec{X: coords[i], Y: coords[i+1]})
		coords[i], coords[i+1] = p.X, p.Y
	}
}

// Compose returns this transform composed with another (this * other).
// The result applies other first, then t.
func (t AffineTransform) Compose(other AffineTransform) AffineTransform {
	return AffineTransform{
		A:  t.A*other.A + t.B*other.C,
		B:  t.A*other.B + t.B*other.D,
		TX: t.A*other.TX + t.B*other.TY + t.TX,
		C:  t.C*other.A + t.D*other.C,
		D:  t.C*other.B + t.D*other.D,
		TY: t.C*other.TX + t.D*other.TY + t.TY,
	}
}

// Determinant returns the determinant of the linear part.
func (t AffineTransform) Determinant() float64 {
	return t.A*t.D - t.B*t.C
}

// Inverse returns the inverse transform, if it exists.
func (t AffineTransform) Inverse() (AffineTransform, bool) {
	det := t.Determinant()
	if math.Abs(det) < 1e-10 {
		return AffineTransform{}, false
	}

	invDet := 1.0 / det
	return AffineTransform{
		A:  t.D * invDet,
		B:  -t.B * invDet,
		TX: (t.B*t.TY - t.D*t.TX) * invDet,
		C:  -t.C * invDet,
		D:  t.A * invDet,
		TY: (t.C*t.TX - t.A*t.TY) * invDet,
	}, true
}

// IsIdentity reports whether t is the identity within tol.
func (t AffineTransform) IsIdentity(tol float64) bool {
	return t.EqualWithin(Identity(), tol)
}

// EqualWithin reports whether every coefficient of t and o differs by at most tol.
func (t AffineTransform) EqualWithin(o AffineTransform, tol float64) bool {
	return scalar.EqualWithinAbs(t.A, o.A, tol) &&
		scalar.EqualWithinAbs(t.B, o.B, tol) &&
		scalar.EqualWithinAbs(t.TX, o.TX, tol) &&
		scalar.EqualWithinAbs(t.C, o.C, tol) &&
		scalar.EqualWithinAbs(t.D, o.D, tol) &&
		scalar.EqualWithinAbs(t.TY, o.TY, tol)
}

// ToGG converts the transform to a gg.Matrix for path and context use.
func (t AffineTransform) ToGG() gg.Matrix {
	return gg.Matrix{
		A: t.A, B: t.B, C: t.TX,
		D: t.C, E: t.D, F: t.TY,
	}
}

// ToMatrix returns the transform as a [2][3]float64 array.
func (t AffineTransform) ToMatrix() [2][3]float64 {
	return [2][3]float64{
		{t.A, t.B, t.TX},
		{t.C, t.D, t.TY},
	}
}

// FromMatrix creates an AffineTransform from a [2][3]float64 array.
func FromMatrix(m [2][3]float64) AffineTransform {
	return AffineTransform{
		A: m[0][0], B: m[0][1], TX: m[0][2],
		C: m[1][0], D: m[1][1], TY: m[1][2],
	}
}

// Size represents a 2D size.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Centroid computes the centroid (average position) of a set of points.
func Centroid(points []r2.Vec) r2.Vec {
	if len(points) == 0 {
		return r2.Vec{}
	}
	var sum r2.Vec
	for _, p := range points {
		sum = r2.Add(sum, p)
	}
	return r2.Scale(1/float64(len(points)), sum)
}

// Angle returns the direction of v in radians.
func Angle(v r2.Vec) float64 {
	return math.Atan2(v.Y, v.X)
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b r2.Vec) float64 {
	return r2.Norm(r2.Sub(a, b))
}

// Lerp interpolates between a and b.
func Lerp(a, b r2.Vec, t float64) r2.Vec {
	return r2.Add(a, r2.Scale(t, r2.Sub(b, a)))
}

// VecEqualWithin reports whether both coordinates differ by at most tol.
func VecEqualWithin(a, b r2.Vec, tol float64) bool {
	return scalar.EqualWithinAbs(a.X, b.X, tol) && scalar.EqualWithinAbs(a.Y, b.Y, tol)
}

// NormalizeAngle maps radians into (-π, π].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
