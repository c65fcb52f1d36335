package canvas

import (
	"errors"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
	"image-annotator/internal/coords"
	"image-annotator/internal/create"
	"image-annotator/internal/gesture"
	"image-annotator/internal/session"
	"image-annotator/pkg/geometry"
)

const (
	// handleRadius is the client-space reach of a corner or rotate handle.
	handleRadius = 6.0
	// rotateOffset places the rotate handle above the top edge midpoint.
	rotateOffset = 24.0
	// hitTolerance is the client-space reach of hit testing.
	hitTolerance = 4.0
)

// Router sends pointer contacts on one image either to the active creation
// controller or, when none is active, to the manipulator. All calls must
// come from the event loop.
type Router struct {
	reg     *session.Registry
	imageID string
	manip   *gesture.Manipulator
	ctrl    create.Controller
	logger  *zap.Logger
}

// NewRouter creates a router for the image.
func NewRouter(reg *session.Registry, imageID string, manip *gesture.Manipulator, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{reg: reg, imageID: imageID, manip: manip, logger: logger}
}

// SetController makes c the active creation tool, closing the previous one.
// Nil returns to selection and manipulation.
func (r *Router) SetController(c create.Controller) {
	if r.ctrl != nil {
		r.ctrl.Close()
	}
	r.manip.Cancel()
	r.ctrl = c
}

// Controller returns the active creation tool.
func (r *Router) Controller() create.Controller { return r.ctrl }

// Manipulator returns the manipulator used when no tool is active.
func (r *Router) Manipulator() *gesture.Manipulator { return r.manip }

// Press starts a contact at client point p.
func (r *Router) Press(p r2.Vec) {
	if r.ctrl != nil {
		r.ctrl.Press(p)
		return
	}
	vp, ok := r.reg.Viewport(r.imageID)
	if !ok {
		return
	}

	if sel, ok := r.reg.Selected(); ok && sel.ImageID() == r.imageID {
		if h, k, ok := pickHandle(ClientBox(sel.BBox(), vp), p, handleRadius); ok {
			r.press(sel, h, k, p, vp)
			return
		}
	}

	if !vp.Contains(p) {
		return
	}
	q := vp.ClientToImage(p)
	target, ok := r.reg.HitTest(r.imageID, q, hitTolerance/vp.EffectiveScale())
	if !ok {
		r.reg.Select(r.imageID, "")
		return
	}
	r.press(target, gesture.Translate, 0, p, vp)
}

func (r *Router) press(target annotation.Annotation, h gesture.Handle, k int, p r2.Vec, vp coords.Viewport) {
	if err := r.manip.Press(target, h, k, p, vp); err != nil {
		if errors.Is(err, gesture.ErrBusy) {
			r.logger.Debug("press ignored", zap.Error(err))
			return
		}
		r.logger.Warn("press rejected", zap.String("annotation", target.ID()), zap.Error(err))
	}
}

// Move tracks the pointer.
func (r *Router) Move(p r2.Vec) {
	if r.ctrl != nil {
		r.ctrl.Move(p)
		return
	}
	r.manip.Move(p)
}

// Release ends the contact.
func (r *Router) Release(p r2.Vec) {
	if r.ctrl != nil {
		r.ctrl.Release(p)
		return
	}
	r.manip.Release(p)
}

// Draft returns what should be drawn on top of the committed annotations:
// the manipulation preview or the controller's pending shapes.
func (r *Router) Draft() []annotation.Annotation {
	if r.ctrl != nil {
		return r.ctrl.Draft()
	}
	if p := r.manip.Preview(); p != nil {
		return []annotation.Annotation{p}
	}
	return nil
}

// Hidden returns the id of the committed annotation the preview replaces.
func (r *Router) Hidden() string {
	if r.ctrl != nil || r.manip.Preview() == nil {
		return ""
	}
	return r.manip.Preview().ID()
}

// Close closes the active controller and cancels any manipulation.
func (r *Router) Close() { r.SetController(nil) }

// ClientBox maps an image-space box onto the screen.
func ClientBox(b geometry.OrientedBox, vp coords.Viewport) geometry.OrientedBox {
	var out geometry.OrientedBox
	for i, p := range b {
		out[i] = vp.ImageToClient(p)
	}
	return out
}

// ClientTransform returns the affine map from image to client space.
func ClientTransform(vp coords.Viewport) geometry.AffineTransform {
	o := vp.ImageToClient(r2.Vec{})
	ex := r2.Sub(vp.ImageToClient(r2.Vec{X: 1}), o)
	ey := r2.Sub(vp.ImageToClient(r2.Vec{Y: 1}), o)
	return geometry.FromMatrix([2][3]float64{
		{ex.X, ey.X, o.X},
		{ex.Y, ey.Y, o.Y},
	})
}

// rotateHandle returns the client position of the rotate handle of b.
func rotateHandle(b geometry.OrientedBox) r2.Vec {
	top := geometry.Lerp(b[0], b[1], 0.5)
	out := r2.Sub(top, geometry.Lerp(b[3], b[2], 0.5))
	n := r2.Norm(out)
	if n < geometry.Epsilon {
		return top
	}
	return r2.Add(top, r2.Scale(rotateOffset/n, out))
}

// pickHandle finds the handle of the client-space box under p. Corners win
// over the rotate handle.
func pickHandle(b geometry.OrientedBox, p r2.Vec, radius float64) (gesture.Handle, int, bool) {
	best, bestD := -1, math.Inf(1)
	for k, c := range b {
		if d := geometry.Distance(c, p); d <= radius && d < bestD {
			best, bestD = k, d
		}
	}
	if best >= 0 {
		return gesture.Scale, best, true
	}
	if geometry.Distance(rotateHandle(b), p) <= radius {
		return gesture.Rotate, 0, true
	}
	return gesture.Translate, 0, false
}
