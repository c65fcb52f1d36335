package annotation

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/event"
	"image-annotator/pkg/geometry"
)

type recorder struct {
	events []interface{}
}

func (r *recorder) Emit(_ event.EventType, data interface{}) {
	r.events = append(r.events, data)
}

func (r *recorder) edits() []event.EditRequest {
	var out []event.EditRequest
	for _, e := range r.events {
		if req, ok := e.(event.EditRequest); ok {
			out = append(out, req)
		}
	}
	return out
}

func (r *recorder) renders() int {
	n := 0
	for _, e := range r.events {
		if c, ok := e.(event.Change); ok && c.Type == event.ChangeRender {
			n++
		}
	}
	return n
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fixtures returns one annotation of every kind on image "img".
func fixtures(t *testing.T) []Annotation {
	t.Helper()
	style := DefaultStyle()

	cloudRect := NewRect("img", r2.Vec{X: 120, Y: 80}, 100, 50, 0.3, style)
	cloudRect.Cloud = true
	cloudRect.CloudArc = 10

	polyline := NewPolyline("img", []r2.Vec{{X: 0, Y: 0}, {X: 40, Y: 10}, {X: 60, Y: 50}}, style)
	polyline.Endings = [2]Ending{EndingCircle, EndingClosedArrow}

	line := NewArrow("img", r2.Vec{X: 10, Y: 200}, r2.Vec{X: 110, Y: 180}, style)
	line.Caption = "12 mm"
	line.CaptionTop = true
	line.LeaderLength = 15
	line.LeaderExtension = 4
	line.LeaderOffset = 2

	txt := NewText("img", geometry.NewOrientedBox(r2.Vec{X: 300, Y: 100}, 120, 40, 0.2), "hello")
	txt.SetCallout(r2.Vec{X: 240, Y: 110}, r2.Vec{X: 220, Y: 140}, r2.Vec{X: 200, Y: 160})
	txt.Justification = JustifyCenter

	custom, err := NewImageStamp("img", pngBytes(t, 8, 4), r2.Vec{X: 50, Y: 300}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	pen := NewPen("img", [][]float64{{0, 0, 10, 10, 20, 5}, {30, 30, 35, 40}}, style)
	pen.Author = "ann"
	pen.Content = "scribble"

	return []Annotation{
		pen,
		cloudRect,
		NewEllipse("img", r2.Vec{X: 200, Y: 200}, 40, 20, -0.4, style),
		polyline,
		NewPolygon("img", []r2.Vec{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 25, Y: 40}}, style),
		line,
		txt,
		NewStamp("img", StampApproved, r2.Vec{X: 400, Y: 400}, 150, 50),
		custom,
		NewNote("img", IconComment, r2.Vec{X: 10, Y: 10}),
	}
}

func TestCornersInsideAABB(t *testing.T) {
	for _, a := range fixtures(t) {
		aabb := a.AABB()
		for i, c := range a.BBox() {
			if !geometry.BoxContains(aabb, c, 1e-9) {
				t.Errorf("%s: corner %d %v outside AABB %v", a.Kind(), i, c, aabb)
			}
		}
	}
}

func TestTransformInverseRestoresAABB(t *testing.T) {
	m := geometry.Translation(13, -4).
		Compose(geometry.RotationAbout(r2.Vec{X: 100, Y: 100}, 0.7)).
		Compose(geometry.ScaleAbout(r2.Vec{X: 100, Y: 100}, 1.5, 1.5))
	inv, ok := m.Inverse()
	if !ok {
		t.Fatal("transform not invertible")
	}
	for _, a := range fixtures(t) {
		before := a.AABB()
		a.ApplyTransform(m, false)
		if geometry.BoxEqualWithin(before, a.AABB(), 1e-3) {
			t.Errorf("%s: AABB unchanged by transform", a.Kind())
		}
		a.ApplyTransform(inv, false)
		if !geometry.BoxEqualWithin(before, a.AABB(), 1e-6) {
			t.Errorf("%s: AABB %v, want %v", a.Kind(), a.AABB(), before)
		}
	}
}

func TestPointShapesInvertGeneralAffine(t *testing.T) {
	m := geometry.AffineTransform{A: 1.2, B: 0.4, TX: 7, C: -0.1, D: 0.8, TY: -3}
	inv, _ := m.Inverse()
	for _, a := range fixtures(t) {
		switch a.Kind() {
		case KindRect, KindEllipse, KindStamp:
			continue
		}
		before := a.ToDTO()
		a.ApplyTransform(m, false)
		a.ApplyTransform(inv, false)
		after := a.ToDTO()
		if d := dtoDiff(before, after); d != "" {
			t.Errorf("%s: geometry not restored (-want +got):\n%s", a.Kind(), d)
		}
	}
}

func TestRectRotate90AboutCenter(t *testing.T) {
	c := r2.Vec{X: 100, Y: 100}
	r := NewRect("img", c, 100, 50, 0, DefaultStyle())
	r.ApplyTransform(geometry.RotationAbout(c, math.Pi/2), true)

	size := r.AABB().Size()
	if !scalar.EqualWithinAbs(size.X, 50, 1e-9) || !scalar.EqualWithinAbs(size.Y, 100, 1e-9) {
		t.Errorf("AABB size = %v, want 50×100", size)
	}
	if !scalar.EqualWithinAbs(r.Rotation, math.Pi/2, 1e-9) {
		t.Errorf("rotation = %v, want π/2", r.Rotation)
	}
	if !scalar.EqualWithinAbs(r.Width, 100, 1e-9) || !scalar.EqualWithinAbs(r.Height, 50, 1e-9) {
		t.Errorf("local size = %v×%v, want 100×50", r.Width, r.Height)
	}
	if !geometry.VecEqualWithin(r.Center, c, 1e-9) {
		t.Errorf("center moved to %v", r.Center)
	}
}

func TestRectNonUniformScaleAlongItsAxes(t *testing.T) {
	c := r2.Vec{X: 0, Y: 0}
	r := NewRect("img", c, 100, 50, 0.5, DefaultStyle())
	r.ApplyTransform(geometry.OrientedScaleAbout(c, 0.5, 2, 3), false)
	if !scalar.EqualWithinAbs(r.Width, 200, 1e-9) || !scalar.EqualWithinAbs(r.Height, 150, 1e-9) {
		t.Errorf("size = %v×%v, want 200×150", r.Width, r.Height)
	}
	if !scalar.EqualWithinAbs(r.Rotation, 0.5, 1e-9) {
		t.Errorf("rotation = %v, want 0.5", r.Rotation)
	}
}

func TestUndoableTransformEmitsEditRequest(t *testing.T) {
	for _, a := range fixtures(t) {
		rec := &recorder{}
		a.Attach(rec)
		before := a.ToDTO()

		a.ApplyTransform(geometry.Translation(10, 5).Compose(geometry.RotationAbout(a.BBox().Center(), 0.25)), true)
		edits := rec.edits()
		if len(edits) != 1 {
			t.Fatalf("%s: %d edit requests, want 1", a.Kind(), len(edits))
		}
		if edits[0].AnnotationID != a.ID() || edits[0].ImageID != "img" {
			t.Errorf("%s: edit request for %s/%s", a.Kind(), edits[0].ImageID, edits[0].AnnotationID)
		}
		if rec.renders() != 1 {
			t.Errorf("%s: %d render changes, want 1", a.Kind(), rec.renders())
		}

		edits[0].Undo()
		after := a.ToDTO()
		if d := dtoDiff(before, after); d != "" {
			t.Errorf("%s: undo did not restore geometry (-want +got):\n%s", a.Kind(), d)
		}
		if rec.renders() != 2 {
			t.Errorf("%s: undo emitted no render change", a.Kind())
		}
		if len(rec.edits()) != 1 {
			t.Errorf("%s: undo emitted an edit request", a.Kind())
		}
	}
}

func TestNonUndoableTransformEmitsOnlyRender(t *testing.T) {
	rec := &recorder{}
	p := NewPolygon("img", []r2.Vec{{}, {X: 10}, {Y: 10}}, DefaultStyle())
	p.Attach(rec)
	p.ApplyTransform(geometry.Translation(1, 1), false)
	if len(rec.edits()) != 0 {
		t.Errorf("got %d edit requests, want 0", len(rec.edits()))
	}
	if rec.renders() != 1 {
		t.Errorf("got %d render changes, want 1", rec.renders())
	}
}

func TestCloneIsDetached(t *testing.T) {
	for _, a := range fixtures(t) {
		rec := &recorder{}
		a.Attach(rec)
		c := a.Clone()
		if c.ID() != a.ID() {
			t.Errorf("%s: clone id %s, want %s", a.Kind(), c.ID(), a.ID())
		}
		before := a.AABB()
		c.ApplyTransform(geometry.Translation(50, 50), true)
		if len(rec.events) != 0 {
			t.Errorf("%s: clone emitted %d events through the original's dispatcher", a.Kind(), len(rec.events))
		}
		if !geometry.BoxEqualWithin(before, a.AABB(), 0) {
			t.Errorf("%s: transforming the clone moved the original", a.Kind())
		}
	}
}

func TestModifiedNotBeforeCreated(t *testing.T) {
	for _, a := range fixtures(t) {
		a.ApplyTransform(geometry.Translation(1, 0), false)
		h := a.Header()
		if h.Modified.Before(h.Created) {
			t.Errorf("%s: modified %v before created %v", a.Kind(), h.Modified, h.Created)
		}
	}
}

func TestRenderProducesPickAndBounds(t *testing.T) {
	for _, a := range fixtures(t) {
		app, err := a.Render(RenderOptions{MinPickWidth: 6})
		if err != nil {
			t.Fatalf("%s: %v", a.Kind(), err)
		}
		if len(app.Visible) == 0 {
			t.Errorf("%s: no visible primitives", a.Kind())
		}
		if app.Pick == nil {
			t.Errorf("%s: no pick helper", a.Kind())
		}
		if app.PickWidth < 6 {
			t.Errorf("%s: pick width %v below floor", a.Kind(), app.PickWidth)
		}
		if app.Bounds.Empty() {
			t.Errorf("%s: empty appearance bounds", a.Kind())
		}
	}
}

func TestRenderInvalidFontColor(t *testing.T) {
	txt := NewText("img", geometry.NewOrientedBox(r2.Vec{}, 10, 10, 0), "x")
	txt.FontColor = "not-a-color"
	if _, err := txt.Render(RenderOptions{}); err == nil {
		t.Error("expected an error for an invalid font color")
	}
}

func TestHitTest(t *testing.T) {
	style := DefaultStyle()
	tests := []struct {
		name string
		a    Annotation
		p    r2.Vec
		want bool
	}{
		{"rect edge", NewRect("img", r2.Vec{X: 50, Y: 50}, 100, 50, 0, style), r2.Vec{X: 0, Y: 50}, true},
		{"rect hollow centre", NewRect("img", r2.Vec{X: 50, Y: 50}, 100, 50, 0, style), r2.Vec{X: 50, Y: 50}, false},
		{"ellipse rim", NewEllipse("img", r2.Vec{}, 40, 20, 0, style), r2.Vec{X: 40}, true},
		{"ellipse far", NewEllipse("img", r2.Vec{}, 40, 20, 0, style), r2.Vec{X: 80}, false},
		{"line near", NewLine("img", r2.Vec{}, r2.Vec{X: 100}, style), r2.Vec{X: 50, Y: 2}, true},
		{"line off end", NewLine("img", r2.Vec{}, r2.Vec{X: 100}, style), r2.Vec{X: 120, Y: 0}, false},
		{"pen stroke", NewPen("img", [][]float64{{0, 0, 100, 0}}, style), r2.Vec{X: 30, Y: 1}, true},
		{"note body", NewNote("img", IconKey, r2.Vec{X: 5, Y: 5}), r2.Vec{X: 8, Y: 8}, true},
		{"stamp inside", NewStamp("img", StampDraft, r2.Vec{}, 100, 40), r2.Vec{X: 10, Y: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.HitTest(tt.p, 3); got != tt.want {
				t.Errorf("HitTest(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestTextResizeTo(t *testing.T) {
	txt := NewText("img", geometry.NewOrientedBox(r2.Vec{X: 50, Y: 20}, 100, 40, 0.4), "x")
	tl := txt.Points[TopLeft]
	rec := &recorder{}
	txt.Attach(rec)
	txt.ResizeTo(150, 60)
	b := txt.Box()
	if !scalar.EqualWithinAbs(b.Width(), 150, 1e-9) || !scalar.EqualWithinAbs(b.Height(), 60, 1e-9) {
		t.Errorf("size = %v×%v, want 150×60", b.Width(), b.Height())
	}
	if !geometry.VecEqualWithin(txt.Points[TopLeft], tl, 1e-9) {
		t.Errorf("top-left moved from %v to %v", tl, txt.Points[TopLeft])
	}
	if !scalar.EqualWithinAbs(txt.Rotation, 0.4, 1e-9) {
		t.Errorf("rotation = %v, want 0.4", txt.Rotation)
	}
	if len(rec.edits()) != 1 {
		t.Errorf("got %d edit requests, want 1", len(rec.edits()))
	}
}

func TestNoteTransformMovesCentreOnly(t *testing.T) {
	n := NewNote("img", IconHelp, r2.Vec{X: 10, Y: 10})
	n.ApplyTransform(geometry.ScaleAbout(r2.Vec{}, 3, 3), false)
	if !geometry.VecEqualWithin(n.Center, r2.Vec{X: 30, Y: 30}, 1e-12) {
		t.Errorf("center = %v, want (30,30)", n.Center)
	}
	if n.Width != DefaultNoteSize || n.Height != DefaultNoteSize {
		t.Errorf("size changed to %v×%v", n.Width, n.Height)
	}
}
