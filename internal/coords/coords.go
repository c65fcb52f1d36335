// Package coords maps between client (screen) coordinates and image pixel
// coordinates under the four discrete image rotations.
package coords

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrInvalidRotation is returned by ParseRotation for values outside
// {0, 90, 180, 270}.
var ErrInvalidRotation = errors.New("rotation must be 0, 90, 180 or 270")

// Rotation is a clockwise image rotation in degrees.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// ParseRotation validates user-supplied degrees. Negative and >360 values
// are normalized first.
func ParseRotation(deg int) (Rotation, error) {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	r := Rotation(deg)
	if !r.Valid() {
		return 0, fmt.Errorf("parse rotation %d: %w", deg, ErrInvalidRotation)
	}
	return r, nil
}

// Valid reports whether r is one of the four supported values.
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

// MustValid panics if r is not a supported rotation. Any other value is a
// programming error: there is no general-angle image rotation path.
func (r Rotation) MustValid() Rotation {
	if !r.Valid() {
		panic(fmt.Sprintf("coords: unsupported image rotation %d", int(r)))
	}
	return r
}

// Add returns r rotated further by delta degrees.
func (r Rotation) Add(delta int) Rotation {
	d := (int(r.MustValid()) + delta) % 360
	if d < 0 {
		d += 360
	}
	return Rotation(d).MustValid()
}

// SwapsAxes reports whether the rendered width corresponds to image height.
func (r Rotation) SwapsAxes() bool {
	return r.MustValid() == Rotate90 || r == Rotate270
}

// Radians returns the rotation in radians.
func (r Rotation) Radians() float64 {
	return float64(r.MustValid()) * math.Pi / 180
}

// Viewport describes where an image (or one annotation of it) is rendered
// on screen.
type Viewport struct {
	// Rect is the rendered client rectangle (after rotation).
	Rect r2.Box
	// Rotation is the owning image's rotation.
	Rotation Rotation
	// Scale is image pixels to client units. Zero means infer it from
	// Rect and LocalWidth.
	Scale float64
	// LocalWidth and LocalHeight are the unrotated size in image pixels.
	LocalWidth  float64
	LocalHeight float64
}

// EffectiveScale returns Scale, or the rendered width divided by the local
// extent that maps onto the client X axis.
func (v Viewport) EffectiveScale() float64 {
	if v.Scale > 0 {
		return v.Scale
	}
	local := v.LocalWidth
	if v.Rotation.SwapsAxes() {
		local = v.LocalHeight
	}
	if local <= 0 {
		return 1
	}
	return (v.Rect.Max.X - v.Rect.Min.X) / local
}

// ClientToImage maps a client point into image space.
func (v Viewport) ClientToImage(p r2.Vec) r2.Vec {
	s := v.EffectiveScale()
	r := v.Rect
	switch v.Rotation.MustValid() {
	case Rotate0:
		return r2.Vec{X: (p.X - r.Min.X) / s, Y: (p.Y - r.Min.Y) / s}
	case Rotate90:
		return r2.Vec{X: (p.Y - r.Min.Y) / s, Y: (r.Max.X - p.X) / s}
	case Rotate180:
		return r2.Vec{X: (r.Max.X - p.X) / s, Y: (r.Max.Y - p.Y) / s}
	default:
		return r2.Vec{X: (r.Max.Y - p.Y) / s, Y: (p.X - r.Min.X) / s}
	}
}

// ImageToClient is the inverse of ClientToImage.
func (v Viewport) ImageToClient(p r2.Vec) r2.Vec {
	s := v.EffectiveScale()
	r := v.Rect
	switch v.Rotation.MustValid() {
	case Rotate0:
		return r2.Vec{X: r.Min.X + p.X*s, Y: r.Min.Y + p.Y*s}
	case Rotate90:
		return r2.Vec{X: r.Max.X - p.Y*s, Y: r.Min.Y + p.X*s}
	case Rotate180:
		return r2.Vec{X: r.Max.X - p.X*s, Y: r.Max.Y - p.Y*s}
	default:
		return r2.Vec{X: r.Min.X + p.Y*s, Y: r.Max.Y - p.X*s}
	}
}

// ClientDeltaToImage maps a client-space displacement into image space.
func (v Viewport) ClientDeltaToImage(d r2.Vec) r2.Vec {
	return r2.Sub(v.ClientToImage(d), v.ClientToImage(r2.Vec{}))
}

// Contains reports whether a client point falls on the rendered rectangle.
func (v Viewport) Contains(p r2.Vec) bool {
	return p.X >= v.Rect.Min.X && p.X <= v.Rect.Max.X &&
		p.Y >= v.Rect.Min.Y && p.Y <= v.Rect.Max.Y
}

// Layout returns the viewport of a w×h image drawn with its rotated
// top-left corner at origin.
func Layout(origin r2.Vec, w, h float64, rot Rotation, scale float64) Viewport {
	cw, ch := w*scale, h*scale
	if rot.SwapsAxes() {
		cw, ch = ch, cw
	}
	return Viewport{
		Rect:        r2.Box{Min: origin, Max: r2.Vec{X: origin.X + cw, Y: origin.Y + ch}},
		Rotation:    rot,
		Scale:       scale,
		LocalWidth:  w,
		LocalHeight: h,
	}
}
