package annotation

import (
	"fmt"
	"math"

	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/pkg/geometry"
)

// Ending is the decoration drawn at a line or polyline end point.
type Ending string

const (
	EndingNone         Ending = "None"
	EndingSquare       Ending = "Square"
	EndingCircle       Ending = "Circle"
	EndingDiamond      Ending = "Diamond"
	EndingOpenArrow    Ending = "OpenArrow"
	EndingClosedArrow  Ending = "ClosedArrow"
	EndingButt         Ending = "Butt"
	EndingROpenArrow   Ending = "ROpenArrow"
	EndingRClosedArrow Ending = "RClosedArrow"
	EndingSlash        Ending = "Slash"
)

func (e Ending) validate() error {
	switch e {
	case "", EndingNone, EndingSquare, EndingCircle, EndingDiamond, EndingOpenArrow,
		EndingClosedArrow, EndingButt, EndingROpenArrow, EndingRClosedArrow, EndingSlash:
		return nil
	}
	return fmt.Errorf("unknown line ending %q", string(e))
}

func (e Ending) none() bool { return e == "" || e == EndingNone }

// endingSize is the decoration length for a stroke width.
func endingSize(width float64) float64 {
	return math.Max(8, 4*width)
}

// endingPrimitive draws e at tip for a line arriving from the direction of
// from. Closed shapes are filled with the stroke color.
func endingPrimitive(e Ending, tip, from r2.Vec, st Style) (Primitive, bool) {
	if e.none() {
		return Primitive{}, false
	}
	size := endingSize(st.Width)
	d := r2.Sub(tip, from)
	if r2.Norm(d) < geometry.Epsilon {
		d = r2.Vec{X: 1}
	}
	theta := geometry.Angle(d)
	// Local frame: +X points along the line towards the tip.
	frame := geometry.Translation(tip.X, tip.Y).Compose(geometry.Rotation(theta))
	local := func(pts ...r2.Vec) []r2.Vec {
		out := make([]r2.Vec, len(pts))
		for i, p := range pts {
			out[i] = frame.Apply(p)
		}
		return out
	}

	stroke := st.stroke()
	if stroke == nil {
		stroke = &Stroke{Color: gg.Hex(st.Color), Width: 1}
	}
	solid := *stroke
	solid.Dash = nil
	fill := solid.Color

	arrowBack := size * math.Cos(math.Pi/6)
	arrowSide := size * math.Sin(math.Pi/6)

	switch e {
	case EndingSquare:
		h := size / 2
		return Primitive{Path: polygonPath(local(r2.Vec{X: -h, Y: -h}, r2.Vec{X: h, Y: -h}, r2.Vec{X: h, Y: h}, r2.Vec{X: -h, Y: h})), Stroke: &solid}, true
	case EndingCircle:
		p := gg.NewPath()
		p.Circle(tip.X, tip.Y, size/2)
		return Primitive{Path: p, Stroke: &solid}, true
	case EndingDiamond:
		h := size / 2
		return Primitive{Path: polygonPath(local(r2.Vec{X: -h}, r2.Vec{Y: -h}, r2.Vec{X: h}, r2.Vec{Y: h})), Stroke: &solid, Fill: &fill}, true
	case EndingOpenArrow:
		return Primitive{Path: polylinePath(local(r2.Vec{X: -arrowBack, Y: -arrowSide}, r2.Vec{}, r2.Vec{X: -arrowBack, Y: arrowSide})), Stroke: &solid}, true
	case EndingClosedArrow:
		return Primitive{Path: polygonPath(local(r2.Vec{X: -arrowBack, Y: -arrowSide}, r2.Vec{}, r2.Vec{X: -arrowBack, Y: arrowSide})), Stroke: &solid, Fill: &fill}, true
	case EndingROpenArrow:
		return Primitive{Path: polylinePath(local(r2.Vec{X: arrowBack, Y: -arrowSide}, r2.Vec{}, r2.Vec{X: arrowBack, Y: arrowSide})), Stroke: &solid}, true
	case EndingRClosedArrow:
		return Primitive{Path: polygonPath(local(r2.Vec{X: arrowBack, Y: -arrowSide}, r2.Vec{}, r2.Vec{X: arrowBack, Y: arrowSide})), Stroke: &solid, Fill: &fill}, true
	case EndingButt:
		return Primitive{Path: polylinePath(local(r2.Vec{Y: -size / 2}, r2.Vec{Y: size / 2})), Stroke: &solid}, true
	case EndingSlash:
		s := r2.Rotate(r2.Vec{Y: size / 2}, math.Pi/6, r2.Vec{})
		return Primitive{Path: polylinePath(local(r2.Scale(-1, s), s)), Stroke: &solid}, true
	}
	return Primitive{}, false
}
