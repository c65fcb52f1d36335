package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Polar holds the factors of L = R(Angle)·P where P is symmetric positive
// semi-definite. SX and SY are the diagonal of P, the stretch along the
// rotated local axes; Shear is the off-diagonal term that a rectangle cannot
// represent and is discarded by callers.
type Polar struct {
	Angle  float64
	SX, SY float64
	Shear  float64
}

// Decompose returns the polar decomposition of the linear 2x2 map
// [[a b] [c d]] computed through an SVD: L = U·Σ·Vᵀ, Q = U·Vᵀ, P = V·Σ·Vᵀ.
// If L contains a reflection the sign is folded into SY so that Q stays a
// proper rotation.
func Decompose(a, b, c, d float64) Polar {
	l := mat.NewDense(2, 2, []float64{a, b, c, d})

	var svd mat.SVD
	if !svd.Factorize(l, mat.SVDFull) {
		return Polar{Angle: math.Atan2(c, a), SX: math.Hypot(a, c), SY: math.Hypot(b, d)}
	}
	sigma := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	if mat.Det(&u)*mat.Det(&v) < 0 {
		// Flip the second left singular vector and its value.
		u.Set(0, 1, -u.At(0, 1))
		u.Set(1, 1, -u.At(1, 1))
		sigma[1] = -sigma[1]
	}

	var q mat.Dense
	q.Mul(&u, v.T())

	var p, vs mat.Dense
	vs.Mul(&v, mat.NewDiagDense(2, sigma))
	p.Mul(&vs, v.T())

	return Polar{
		Angle: math.Atan2(q.At(1, 0), q.At(0, 0)),
		SX:    p.At(0, 0),
		SY:    p.At(1, 1),
		Shear: p.At(0, 1),
	}
}

// DecomposeRect re-derives the centre, size and rotation of a w×h
// rectangle rotated by theta after mapping it through t. Shear introduced by
// non-uniform scaling of a rotated shape is projected out rather than folded
// into the rotation angle.
func DecomposeRect(t AffineTransform, w, h, theta float64) (width, height, rotation float64) {
	// L = t_lin · R(θ) · diag(w, h)
	basis := t.Compose(Rotation(theta)).Compose(Scale(w, h))
	pd := Decompose(basis.A, basis.B, basis.C, basis.D)
	return math.Abs(pd.SX), math.Abs(pd.SY), NormalizeAngle(pd.Angle)
}
