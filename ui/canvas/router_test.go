package canvas

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
	"image-annotator/internal/config"
	"image-annotator/internal/coords"
	"image-annotator/internal/gesture"
	"image-annotator/internal/sched"
	"image-annotator/internal/session"
	"image-annotator/pkg/geometry"
)

type routerRig struct {
	clock  *sched.Manual
	reg    *session.Registry
	router *Router
	rect   *annotation.Rect
	vp     coords.Viewport
}

// newRouterRig lays a 400×300 image out at (10,10), scale 1, and puts a
// 100×50 rectangle centred at (100,100) on it.
func newRouterRig(t *testing.T, rot coords.Rotation) *routerRig {
	t.Helper()
	r := &routerRig{clock: sched.NewManual(time.Unix(0, 0)), reg: session.NewRegistry()}
	if _, err := r.reg.AddImage("img", 400, 300); err != nil {
		t.Fatal(err)
	}
	if err := r.reg.SetRotation("img", rot); err != nil {
		t.Fatal(err)
	}
	vp, err := r.reg.Layout("img", r2.Vec{X: 10, Y: 10})
	if err != nil {
		t.Fatal(err)
	}
	r.vp = vp
	r.rect = annotation.NewRect("img", r2.Vec{X: 100, Y: 100}, 100, 50, 0, annotation.DefaultStyle())
	if err := r.reg.Append(r.rect); err != nil {
		t.Fatal(err)
	}
	r.router = NewRouter(r.reg, "img", gesture.NewManipulator(r.clock, r.reg.Bus()), nil)
	return r
}

func (r *routerRig) client(x, y float64) r2.Vec { return r.vp.ImageToClient(r2.Vec{X: x, Y: y}) }

func TestRouterTapSelects(t *testing.T) {
	r := newRouterRig(t, coords.Rotate0)
	p := r.client(50, 100) // left edge
	r.router.Press(p)
	r.router.Release(p)
	sel, ok := r.reg.Selected()
	if !ok || sel.ID() != r.rect.ID() {
		t.Fatalf("selected = %v, %v", sel, ok)
	}

	// A tap on empty image clears the selection.
	q := r.client(300, 250)
	r.router.Press(q)
	r.router.Release(q)
	if _, ok := r.reg.Selected(); ok {
		t.Error("selection survived a tap on empty space")
	}
}

func TestRouterDragsSelectedCorner(t *testing.T) {
	for _, rot := range []coords.Rotation{coords.Rotate0, coords.Rotate90, coords.Rotate180, coords.Rotate270} {
		r := newRouterRig(t, rot)
		r.reg.Select("img", r.rect.ID())

		// Bottom-right corner of the rectangle in image space.
		start := r.client(150, 125)
		r.router.Press(start)
		if got := r.router.Manipulator().State(); got != gesture.PendingActivation {
			t.Fatalf("rotation %d: state = %v", rot, got)
		}
		r.clock.Advance(gesture.DefaultActivationDelay)
		r.router.Move(r.client(200, 150))
		if len(r.router.Draft()) != 1 || r.router.Hidden() != r.rect.ID() {
			t.Errorf("rotation %d: preview not exposed", rot)
		}
		r.router.Release(r.client(200, 150))

		if !scalar.EqualWithinAbs(r.rect.Width, 150, 1e-6) || !scalar.EqualWithinAbs(r.rect.Height, 75, 1e-6) {
			t.Errorf("rotation %d: size = %v×%v, want 150×75", rot, r.rect.Width, r.rect.Height)
		}
		if !geometry.VecEqualWithin(r.rect.BBox()[0], r2.Vec{X: 50, Y: 75}, 1e-6) {
			t.Errorf("rotation %d: pivot moved to %v", rot, r.rect.BBox()[0])
		}
	}
}

func TestRouterRotateHandle(t *testing.T) {
	r := newRouterRig(t, coords.Rotate0)
	r.reg.Select("img", r.rect.ID())
	h := rotateHandle(ClientBox(r.rect.BBox(), r.vp))
	r.router.Press(h)
	r.clock.Advance(gesture.DefaultActivationDelay)
	// Quarter turn clockwise around the centre.
	c := r.client(100, 100)
	end := r2.Add(c, r2.Vec{X: geometry.Distance(c, h)})
	r.router.Move(end)
	r.router.Release(end)
	if !scalar.EqualWithinAbs(r.rect.Rotation, math.Pi/2, 1e-6) {
		t.Errorf("rotation = %v, want π/2", r.rect.Rotation)
	}
}

func TestRouterControllerTakesPrecedence(t *testing.T) {
	r := newRouterRig(t, coords.Rotate0)
	ctrl, err := NewController(r.reg, "img", ToolRect, SettingsFromConfig(config.Default()), nil)
	if err != nil {
		t.Fatal(err)
	}
	r.router.SetController(ctrl)

	// Starting on the existing rectangle draws a new one instead of moving it.
	r.router.Press(r.client(50, 100))
	r.router.Move(r.client(80, 140))
	r.router.Release(r.client(120, 180))
	if r.router.Manipulator().State() != gesture.Idle {
		t.Error("manipulator engaged while a tool was active")
	}
	if n := len(r.router.Draft()); n != 1 {
		t.Fatalf("draft has %d shapes, want 1", n)
	}
	saved, err := ctrl.Save()
	if err != nil || len(saved) != 1 {
		t.Fatalf("saved %d: %v", len(saved), err)
	}

	r.router.Close()
	if r.router.Controller() != nil {
		t.Error("controller kept after Close")
	}
}

func TestPickHandle(t *testing.T) {
	b := geometry.NewOrientedBox(r2.Vec{X: 100, Y: 100}, 100, 50, 0)
	tests := []struct {
		name   string
		p      r2.Vec
		handle gesture.Handle
		corner int
		ok     bool
	}{
		{"top left", r2.Vec{X: 51, Y: 76}, gesture.Scale, 0, true},
		{"bottom right", r2.Vec{X: 148, Y: 124}, gesture.Scale, 2, true},
		{"rotate", r2.Vec{X: 100, Y: 75 - rotateOffset}, gesture.Rotate, 0, true},
		{"inside", r2.Vec{X: 100, Y: 100}, gesture.Translate, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, k, ok := pickHandle(b, tt.p, handleRadius)
			if h != tt.handle || k != tt.corner || ok != tt.ok {
				t.Errorf("got %v %d %v", h, k, ok)
			}
		})
	}
}

func TestClientTransformMatchesViewport(t *testing.T) {
	for _, rot := range []coords.Rotation{coords.Rotate0, coords.Rotate90, coords.Rotate180, coords.Rotate270} {
		vp := coords.Layout(r2.Vec{X: 5, Y: 7}, 40, 30, rot, 1.5)
		m := ClientTransform(vp)
		for _, p := range []r2.Vec{{}, {X: 40, Y: 30}, {X: 12.5, Y: 3}} {
			if got, want := m.Apply(p), vp.ImageToClient(p); !geometry.VecEqualWithin(got, want, 1e-9) {
				t.Errorf("rotation %d: %v maps to %v, want %v", rot, p, got, want)
			}
		}
	}
}

func TestNewControllerEveryTool(t *testing.T) {
	reg := session.NewRegistry()
	if _, err := reg.AddImage("img", 100, 100); err != nil {
		t.Fatal(err)
	}
	s := SettingsFromConfig(config.Default())
	for _, tool := range Tools() {
		c, err := NewController(reg, "img", tool, s, nil)
		if err != nil {
			t.Errorf("%v: %v", tool, err)
			continue
		}
		if (c == nil) != (tool == ToolSelect) {
			t.Errorf("%v: controller = %v", tool, c)
		}
		if c != nil {
			c.Close()
		}
	}
	if _, err := NewController(reg, "missing", ToolRect, s, nil); err == nil {
		t.Error("controller created for an unknown image")
	}
	s.Stamp = "Bogus"
	if _, err := NewController(reg, "img", ToolStamp, s, nil); err == nil {
		t.Error("unknown stamp accepted")
	}
}
