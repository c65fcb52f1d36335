package gesture

import (
	"errors"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
	"image-annotator/internal/coords"
	"image-annotator/internal/event"
	"image-annotator/internal/sched"
	"image-annotator/pkg/geometry"
)

type rig struct {
	clock   *sched.Manual
	bus     *event.Bus
	m       *Manipulator
	rect    *annotation.Rect
	vp      coords.Viewport
	edits   []event.EditRequest
	selects []event.SelectRequest
}

func newRig(t *testing.T, rot coords.Rotation) *rig {
	t.Helper()
	r := &rig{
		clock: sched.NewManual(time.Unix(0, 0)),
		bus:   event.NewBus(),
		rect:  annotation.NewRect("img", r2.Vec{X: 100, Y: 100}, 100, 50, 0, annotation.DefaultStyle()),
		vp:    coords.Layout(r2.Vec{X: 20, Y: 10}, 400, 300, rot, 1),
	}
	r.rect.Attach(r.bus)
	r.m = NewManipulator(r.clock, r.bus)
	r.bus.On(event.EventEditRequest, func(data interface{}) {
		r.edits = append(r.edits, data.(event.EditRequest))
	})
	r.bus.On(event.EventSelectRequest, func(data interface{}) {
		r.selects = append(r.selects, data.(event.SelectRequest))
	})
	return r
}

// client maps an image point to the screen.
func (r *rig) client(x, y float64) r2.Vec {
	return r.vp.ImageToClient(r2.Vec{X: x, Y: y})
}

func (r *rig) press(t *testing.T, h Handle, corner int, x, y float64) {
	t.Helper()
	if err := r.m.Press(r.rect, h, corner, r.client(x, y), r.vp); err != nil {
		t.Fatal(err)
	}
}

func (r *rig) activate() { r.clock.Advance(DefaultActivationDelay) }

func TestTapSelectsWithoutMutation(t *testing.T) {
	r := newRig(t, coords.Rotate0)
	r.press(t, Translate, 0, 100, 100)
	if r.m.State() != PendingActivation {
		t.Fatalf("state = %v, want pending-activation", r.m.State())
	}
	r.clock.Advance(DefaultActivationDelay / 2)
	r.m.Release(r.client(100, 100))

	if r.m.State() != Idle {
		t.Errorf("state = %v, want idle", r.m.State())
	}
	if r.clock.Pending() != 0 {
		t.Errorf("activation timer still pending")
	}
	if len(r.edits) != 0 {
		t.Errorf("tap produced %d edits", len(r.edits))
	}
	if len(r.selects) != 1 || r.selects[0].AnnotationID != r.rect.ID() {
		t.Errorf("selects = %+v", r.selects)
	}
	r.clock.Advance(time.Second)
	if r.m.Preview() != nil {
		t.Error("cancelled timer still activated a preview")
	}
}

func TestQuickDragIsStillATap(t *testing.T) {
	r := newRig(t, coords.Rotate0)
	r.press(t, Translate, 0, 100, 100)
	r.m.Move(r.client(160, 100))
	r.m.Release(r.client(160, 100))
	if len(r.edits) != 0 || len(r.selects) != 1 {
		t.Errorf("edits = %d, selects = %d, want 0 and 1", len(r.edits), len(r.selects))
	}
	if !geometry.VecEqualWithin(r.rect.Center, r2.Vec{X: 100, Y: 100}, 0) {
		t.Errorf("centre moved to %v", r.rect.Center)
	}
}

func TestHoldWithoutMovementSelects(t *testing.T) {
	r := newRig(t, coords.Rotate0)
	r.press(t, Translate, 0, 100, 100)
	r.activate()
	if r.m.State() != Previewing {
		t.Fatalf("state = %v, want previewing", r.m.State())
	}
	r.m.Move(r.client(101, 100)) // inside the dead zone
	r.m.Release(r.client(101, 100))
	if len(r.edits) != 0 || len(r.selects) != 1 {
		t.Errorf("edits = %d, selects = %d, want 0 and 1", len(r.edits), len(r.selects))
	}
}

func TestTranslateDragCommitsOnce(t *testing.T) {
	r := newRig(t, coords.Rotate0)
	before := r.rect.AABB()
	r.press(t, Translate, 0, 100, 100)
	r.activate()
	for i := 1; i <= 10; i++ {
		r.m.Move(r.client(100+3*float64(i), 100+float64(i)))
	}

	preview := r.m.Preview()
	if preview == nil {
		t.Fatal("no preview while dragging")
	}
	if !geometry.BoxEqualWithin(r.rect.AABB(), before, 0) {
		t.Error("authoritative shape moved before release")
	}
	want := r2.Box{Min: r2.Add(before.Min, r2.Vec{X: 30, Y: 10}), Max: r2.Add(before.Max, r2.Vec{X: 30, Y: 10})}
	if !geometry.BoxEqualWithin(preview.AABB(), want, 1e-9) {
		t.Errorf("preview AABB = %v, want %v", preview.AABB(), want)
	}

	r.m.Release(r.client(130, 110))
	if len(r.edits) != 1 {
		t.Fatalf("got %d edit requests, want 1", len(r.edits))
	}
	if !geometry.BoxEqualWithin(r.rect.AABB(), want, 1e-9) {
		t.Errorf("committed AABB = %v, want %v", r.rect.AABB(), want)
	}
	if r.m.Preview() != nil || r.m.State() != Idle {
		t.Error("preview kept after commit")
	}

	r.edits[0].Undo()
	if !geometry.BoxEqualWithin(r.rect.AABB(), before, 1e-9) {
		t.Errorf("undo AABB = %v, want %v", r.rect.AABB(), before)
	}
}

func TestMovesDuringPendingActivationCarryOver(t *testing.T) {
	r := newRig(t, coords.Rotate0)
	r.press(t, Translate, 0, 100, 100)
	r.m.Move(r.client(150, 100))
	r.activate()
	p := r.m.Preview()
	if p == nil {
		t.Fatal("no preview after activation")
	}
	if got := p.BBox().Center(); !geometry.VecEqualWithin(got, r2.Vec{X: 150, Y: 100}, 1e-9) {
		t.Errorf("preview centre = %v, want (150, 100)", got)
	}
}

func TestRotateTracksPointerOnRotatedImage(t *testing.T) {
	for _, rot := range []coords.Rotation{coords.Rotate0, coords.Rotate90, coords.Rotate180, coords.Rotate270} {
		r := newRig(t, rot)
		// From straight above the centre to straight right of it, in image space.
		r.press(t, Rotate, 0, 100, 50)
		r.activate()
		r.m.Release(r.client(150, 100))

		if len(r.edits) != 1 {
			t.Fatalf("rotation %d: got %d edits, want 1", rot, len(r.edits))
		}
		if got := geometry.NormalizeAngle(r.rect.Rotation); !scalar.EqualWithinAbs(got, math.Pi/2, 1e-9) {
			t.Errorf("rotation %d: shape rotation = %v, want π/2", rot, got)
		}
		if !geometry.VecEqualWithin(r.rect.Center, r2.Vec{X: 100, Y: 100}, 1e-9) {
			t.Errorf("rotation %d: centre moved to %v", rot, r.rect.Center)
		}
	}
}

func TestScaleCornerPivotsOnOpposite(t *testing.T) {
	r := newRig(t, coords.Rotate0)
	// Bottom-right corner of the 100×50 rect at (100, 100).
	r.press(t, Scale, 2, 150, 125)
	r.activate()
	r.m.Release(r.client(200, 150))

	if len(r.edits) != 1 {
		t.Fatalf("got %d edits, want 1", len(r.edits))
	}
	if !scalar.EqualWithinAbs(r.rect.Width, 150, 1e-9) || !scalar.EqualWithinAbs(r.rect.Height, 75, 1e-9) {
		t.Errorf("size = %v×%v, want 150×75", r.rect.Width, r.rect.Height)
	}
	if got := r.rect.BBox()[0]; !geometry.VecEqualWithin(got, r2.Vec{X: 50, Y: 75}, 1e-9) {
		t.Errorf("pivot corner moved to %v", got)
	}
}

func TestScaleTransformFollowsShapeAxes(t *testing.T) {
	b := geometry.NewOrientedBox(r2.Vec{X: 0, Y: 0}, 100, 50, math.Pi/2)
	// Local +X points along image +Y for a quarter turn.
	m := ScaleTransform(b, 2, r2.Vec{X: 0, Y: 50})
	if got := m.Apply(b[0]); !geometry.VecEqualWithin(got, b[0], 1e-9) {
		t.Errorf("pivot maps to %v, want %v", got, b[0])
	}
	if got, want := m.Apply(b[2]), r2.Add(b[2], r2.Vec{X: 0, Y: 50}); !geometry.VecEqualWithin(got, want, 1e-9) {
		t.Errorf("dragged corner maps to %v, want %v", got, want)
	}

	rect := annotation.NewRect("img", r2.Vec{}, 100, 50, math.Pi/2, annotation.DefaultStyle())
	rect.ApplyTransform(m, false)
	if !scalar.EqualWithinAbs(rect.Width, 150, 1e-9) || !scalar.EqualWithinAbs(rect.Height, 50, 1e-9) {
		t.Errorf("size = %v×%v, want 150×50", rect.Width, rect.Height)
	}
	if got := geometry.NormalizeAngle(rect.Rotation); !scalar.EqualWithinAbs(got, math.Pi/2, 1e-9) {
		t.Errorf("rotation = %v, want π/2", got)
	}
}

func TestScaleTransformClampsPositive(t *testing.T) {
	b := geometry.NewOrientedBox(r2.Vec{X: 100, Y: 100}, 100, 50, 0)
	m := ScaleTransform(b, 2, r2.Vec{X: -300, Y: -300})
	if det := m.Determinant(); det <= 0 {
		t.Errorf("determinant = %v, want positive", det)
	}
	if got := m.Apply(b[0]); !geometry.VecEqualWithin(got, b[0], 1e-9) {
		t.Errorf("pivot maps to %v", got)
	}
}

func TestRotateTransformDegenerate(t *testing.T) {
	b := geometry.NewOrientedBox(r2.Vec{X: 10, Y: 10}, 4, 4, 0)
	if m := RotateTransform(b, r2.Vec{X: 10, Y: 10}, r2.Vec{X: 20, Y: 10}); !m.IsIdentity(0) {
		t.Errorf("pointer on the centre produced %+v", m)
	}
}

func TestPressWhileBusy(t *testing.T) {
	r := newRig(t, coords.Rotate0)
	r.press(t, Translate, 0, 100, 100)
	if err := r.m.Press(r.rect, Translate, 0, r.client(0, 0), r.vp); !errors.Is(err, ErrBusy) {
		t.Errorf("error = %v, want ErrBusy", err)
	}
}

func TestPressRejectsBadInput(t *testing.T) {
	r := newRig(t, coords.Rotate0)
	if err := r.m.Press(r.rect, Scale, 4, r.client(0, 0), r.vp); err == nil {
		t.Error("corner 4 accepted")
	}
	r.rect.SetDeleted(true)
	if err := r.m.Press(r.rect, Translate, 0, r.client(0, 0), r.vp); err == nil {
		t.Error("deleted target accepted")
	}
	if r.m.State() != Idle {
		t.Errorf("state = %v, want idle", r.m.State())
	}
}

func TestCancelDuringPreview(t *testing.T) {
	r := newRig(t, coords.Rotate0)
	r.press(t, Translate, 0, 100, 100)
	r.activate()
	r.m.Move(r.client(140, 100))
	r.m.Cancel()
	r.m.Release(r.client(140, 100))
	if len(r.edits) != 0 || len(r.selects) != 0 {
		t.Errorf("cancel produced edits = %d, selects = %d", len(r.edits), len(r.selects))
	}
	if !geometry.VecEqualWithin(r.rect.Center, r2.Vec{X: 100, Y: 100}, 0) {
		t.Errorf("centre moved to %v", r.rect.Center)
	}
}

func TestTargetDeletedBeforeActivation(t *testing.T) {
	r := newRig(t, coords.Rotate0)
	r.press(t, Translate, 0, 100, 100)
	r.rect.SetDeleted(true)
	r.activate()
	if r.m.State() != Idle || r.m.Preview() != nil {
		t.Errorf("state = %v, preview = %v", r.m.State(), r.m.Preview())
	}
}

func TestTargetDeletedBeforeCommit(t *testing.T) {
	r := newRig(t, coords.Rotate0)
	r.press(t, Translate, 0, 100, 100)
	r.activate()
	r.m.Move(r.client(140, 100))
	r.rect.SetDeleted(true)
	r.m.Release(r.client(140, 100))
	if len(r.edits) != 0 {
		t.Errorf("deleted target received %d edits", len(r.edits))
	}
}

func TestIndependentManipulators(t *testing.T) {
	a, b := newRig(t, coords.Rotate0), newRig(t, coords.Rotate0)
	b.clock = a.clock
	b.m = NewManipulator(a.clock, b.bus)
	a.press(t, Translate, 0, 100, 100)
	b.press(t, Translate, 0, 100, 100)
	a.activate()
	if a.m.State() != Previewing || b.m.State() != Previewing {
		t.Errorf("states = %v, %v", a.m.State(), b.m.State())
	}
}
