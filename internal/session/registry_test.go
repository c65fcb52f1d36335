package session

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
	"image-annotator/internal/coords"
	"image-annotator/internal/event"
	"image-annotator/pkg/geometry"
)

func newRegistry(t *testing.T, images ...string) *Registry {
	t.Helper()
	r := NewRegistry(WithAuthor("tester"))
	for _, id := range images {
		if _, err := r.AddImage(id, 400, 300); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func pen(imageID string, x float64) *annotation.Pen {
	return annotation.NewPen(imageID, [][]float64{{x, 0, x + 10, 10}}, annotation.DefaultStyle())
}

type state struct {
	ID      string
	Deleted bool
}

func snapshot(r *Registry, imageID string) []state {
	img, _ := r.Image(imageID)
	var out []state
	for _, a := range img.All() {
		out = append(out, state{a.ID(), a.Deleted()})
	}
	return out
}

func changes(r *Registry, t event.ChangeType) *[]string {
	var ids []string
	r.Bus().On(event.EventChange, func(data interface{}) {
		if c := data.(event.Change); c.Type == t {
			ids = append(ids, c.AnnotationIDs...)
		}
	})
	return &ids
}

func TestThreePensThreeUndos(t *testing.T) {
	r := newRegistry(t, "A")
	removed := changes(r, event.ChangeDelete)

	var ids []string
	for i := 0; i < 3; i++ {
		p := pen("A", float64(i*20))
		if err := r.Append(p); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, p.ID())
	}
	if n := len(r.Annotations("A")); n != 3 {
		t.Fatalf("got %d annotations, want 3", n)
	}
	for i := 0; i < 3; i++ {
		if !r.Undo() {
			t.Fatalf("undo %d returned false", i)
		}
	}
	if n := len(r.Annotations("A")); n != 0 {
		t.Errorf("got %d annotations after undo, want 0", n)
	}
	want := []string{ids[2], ids[1], ids[0]}
	if d := cmp.Diff(want, *removed); d != "" {
		t.Errorf("removal order (-want +got):\n%s", d)
	}
	if r.Undo() {
		t.Error("undo on an empty stack returned true")
	}
}

func TestAppendUndoRestoresSet(t *testing.T) {
	r := newRegistry(t, "A")
	for i := 0; i < 2; i++ {
		if err := r.Append(pen("A", float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	first := r.Annotations("A")[0]
	if err := r.Delete("A", first.ID()); err != nil {
		t.Fatal(err)
	}
	before := snapshot(r, "A")

	if err := r.Append(pen("A", 99)); err != nil {
		t.Fatal(err)
	}
	r.Undo()
	if d := cmp.Diff(before, snapshot(r, "A")); d != "" {
		t.Errorf("annotation set changed (-want +got):\n%s", d)
	}
}

func TestAppendDuplicateID(t *testing.T) {
	r := newRegistry(t, "A")
	p := pen("A", 0)
	if err := r.Append(p); err != nil {
		t.Fatal(err)
	}
	if err := r.Append(p.Clone()); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("error = %v, want ErrDuplicateID", err)
	}
	if err := r.Delete("A", p.ID()); err != nil {
		t.Fatal(err)
	}
	if err := r.Append(p.Clone()); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("tombstoned id: error = %v, want ErrDuplicateID", err)
	}
	if n := len(r.Annotations("A")); n != 0 {
		t.Errorf("got %d live annotations, want 0", n)
	}
}

func TestAppendUnknownImage(t *testing.T) {
	r := newRegistry(t, "A")
	if err := r.Append(pen("B", 0)); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("error = %v, want ErrImageNotFound", err)
	}
	if r.CanUndo() {
		t.Error("failed append pushed an undo command")
	}
}

func TestAppendStampsAuthor(t *testing.T) {
	r := newRegistry(t, "A")
	p := pen("A", 0)
	if err := r.Append(p); err != nil {
		t.Fatal(err)
	}
	if p.Author != "tester" {
		t.Errorf("author = %q, want tester", p.Author)
	}
}

func TestDeleteIsTombstoneWithUndo(t *testing.T) {
	r := newRegistry(t, "A")
	p := pen("A", 0)
	if err := r.Append(p); err != nil {
		t.Fatal(err)
	}
	r.Select("A", p.ID())
	if err := r.Delete("A", p.ID()); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Find("A", p.ID()); ok {
		t.Error("deleted annotation still found")
	}
	if _, ok := r.Selected(); ok {
		t.Error("deleted annotation still selected")
	}
	if n := len(snapshot(r, "A")); n != 1 {
		t.Errorf("tombstone removed from list: %d entries", n)
	}
	if err := r.Delete("A", p.ID()); !errors.Is(err, ErrAnnotationNotFound) {
		t.Errorf("second delete error = %v, want ErrAnnotationNotFound", err)
	}

	r.Undo()
	if _, ok := r.Find("A", p.ID()); !ok {
		t.Error("undo did not revive the annotation")
	}
}

func TestCommittedTransformPushesOneCommand(t *testing.T) {
	r := newRegistry(t, "A")
	rect := annotation.NewRect("A", r2.Vec{X: 100, Y: 100}, 100, 50, 0, annotation.DefaultStyle())
	if err := r.Append(rect); err != nil {
		t.Fatal(err)
	}
	edits := changes(r, event.ChangeEdit)

	rect.ApplyTransform(geometry.RotationAbout(rect.Center, 0.5), true)
	if len(*edits) != 1 {
		t.Errorf("got %d edit changes, want 1", len(*edits))
	}
	r.Undo() // transform
	if !scalar.EqualWithinAbs(rect.Rotation, 0, 1e-12) {
		t.Errorf("rotation after undo = %v, want 0", rect.Rotation)
	}
	if n := len(r.Annotations("A")); n != 1 {
		t.Errorf("transform undo removed the annotation")
	}
	r.Undo() // append
	if n := len(r.Annotations("A")); n != 0 {
		t.Errorf("got %d annotations, want 0", n)
	}
}

func TestNonUndoableTransformPushesNothing(t *testing.T) {
	r := newRegistry(t, "A")
	p := pen("A", 0)
	if err := r.Append(p); err != nil {
		t.Fatal(err)
	}
	p.ApplyTransform(geometry.Translation(5, 5), false)
	r.Undo() // append
	if r.CanUndo() {
		t.Error("non-undoable transform left a command")
	}
}

func TestUndoAcrossImagesIsChronological(t *testing.T) {
	r := newRegistry(t, "A", "B")
	a, b := pen("A", 0), pen("B", 0)
	if err := r.Append(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Append(b); err != nil {
		t.Fatal(err)
	}
	r.Undo()
	if len(r.Annotations("B")) != 0 || len(r.Annotations("A")) != 1 {
		t.Errorf("first undo should revert the append on B")
	}
}

func TestUndoAfterImageRemovedIsNoop(t *testing.T) {
	r := newRegistry(t, "A", "B")
	if err := r.Append(pen("A", 0)); err != nil {
		t.Fatal(err)
	}
	if err := r.RemoveImage("A"); err != nil {
		t.Fatal(err)
	}
	if !r.Undo() {
		t.Error("undo should pop the stale command")
	}
	if _, ok := r.Image("A"); ok {
		t.Error("undo resurrected a removed image")
	}
}

func TestPointToImage(t *testing.T) {
	r := newRegistry(t, "A", "B")
	if err := r.SetScale("A", 2); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRotation("A", coords.Rotate90); err != nil {
		t.Fatal(err)
	}
	// A is 400×300 at scale 2, rotated: 600 wide, 800 tall on screen.
	if err := r.SetViewport("A", r2.Box{Min: r2.Vec{X: 10, Y: 20}, Max: r2.Vec{X: 610, Y: 820}}); err != nil {
		t.Fatal(err)
	}
	got, ok := r.PointToImage(r2.Vec{X: 610, Y: 20})
	if !ok || got.ImageID != "A" {
		t.Fatalf("PointToImage = %+v, %v", got, ok)
	}
	if !geometry.VecEqualWithin(got.Vec(), r2.Vec{}, 1e-9) {
		t.Errorf("rotated top-right corner maps to %v, want image origin", got.Vec())
	}
	if _, ok := r.PointToImage(r2.Vec{X: 700, Y: 20}); ok {
		t.Error("point outside every image resolved")
	}
}

func TestSetRotationInvalidPanics(t *testing.T) {
	r := newRegistry(t, "A")
	defer func() {
		if recover() == nil {
			t.Error("rotation 45 did not panic")
		}
	}()
	_ = r.SetRotation("A", coords.Rotation(45))
}

func TestSetScaleRejectsNonPositive(t *testing.T) {
	r := newRegistry(t, "A")
	if err := r.SetScale("A", 0); err == nil {
		t.Error("scale 0 accepted")
	}
	if err := r.SetScale("missing", 1); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("error = %v, want ErrImageNotFound", err)
	}
}

type brokenPen struct {
	*annotation.Pen
}

func (brokenPen) Render(annotation.RenderOptions) (*annotation.Appearance, error) {
	panic("corrupt geometry")
}

func TestRenderAllIsolatesFailures(t *testing.T) {
	r := newRegistry(t, "A")
	good := pen("A", 0)
	bad := brokenPen{pen("A", 50)}
	for _, a := range []annotation.Annotation{good, bad, pen("A", 100)} {
		if err := r.Append(a); err != nil {
			t.Fatal(err)
		}
	}
	out := r.RenderAll("A")
	if len(out) != 2 {
		t.Fatalf("rendered %d annotations, want 2", len(out))
	}
	for _, o := range out {
		if o.Annotation.ID() == bad.ID() {
			t.Error("broken annotation was rendered")
		}
	}
}

func TestImportExport(t *testing.T) {
	src := newRegistry(t, "A")
	for i := 0; i < 3; i++ {
		if err := src.Append(pen("A", float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	data, err := src.ExportJSON("A")
	if err != nil {
		t.Fatal(err)
	}

	dst := newRegistry(t, "A")
	imported := changes(dst, event.ChangeImport)
	anns, err := dst.ImportJSON("A", data)
	if err != nil {
		t.Fatal(err)
	}
	if len(anns) != 3 || len(*imported) != 3 {
		t.Errorf("imported %d annotations, %d ids announced", len(anns), len(*imported))
	}
	if dst.CanUndo() {
		t.Error("import pushed an undo command")
	}
	want, _ := src.Export("A")
	got, _ := dst.Export("A")
	if d := cmp.Diff(want, got, cmpopts.EquateEmpty()); d != "" {
		t.Errorf("export mismatch (-want +got):\n%s", d)
	}

	// Re-importing the same ids is rejected and changes nothing.
	if _, err := dst.ImportJSON("A", data); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("error = %v, want ErrDuplicateID", err)
	}
	if n := len(dst.Annotations("A")); n != 3 {
		t.Errorf("got %d annotations after rejected import, want 3", n)
	}
}

func TestImportMalformedChangesNothing(t *testing.T) {
	r := newRegistry(t, "A")
	good := pen("A", 0).ToDTO()
	bad := good
	bad.ID = "other"
	bad.Paths = [][]float64{{1}}
	if _, err := r.Import("A", []annotation.DTO{good, bad}); !errors.Is(err, annotation.ErrInvalidDTO) {
		t.Errorf("error = %v, want ErrInvalidDTO", err)
	}
	if n := len(r.Annotations("A")); n != 0 {
		t.Errorf("got %d annotations, want 0", n)
	}
}

func TestSelectRequestThroughBus(t *testing.T) {
	r := newRegistry(t, "A")
	p := pen("A", 0)
	if err := r.Append(p); err != nil {
		t.Fatal(err)
	}
	r.Bus().Emit(event.EventSelectRequest, event.SelectRequest{ImageID: "A", AnnotationID: p.ID()})
	sel, ok := r.Selected()
	if !ok || sel.ID() != p.ID() {
		t.Errorf("selected = %v, %v", sel, ok)
	}
	r.Bus().Emit(event.EventFocusRequest, event.FocusRequest{ImageID: "A", AnnotationID: "missing"})
	if _, ok := r.Focused(); ok {
		t.Error("focus moved to a missing annotation")
	}
}

func TestHitTestTopmost(t *testing.T) {
	r := newRegistry(t, "A")
	under := annotation.NewRect("A", r2.Vec{X: 50, Y: 50}, 100, 100, 0, annotation.DefaultStyle())
	over := annotation.NewRect("A", r2.Vec{X: 50, Y: 50}, 100, 100, 0, annotation.DefaultStyle())
	for _, a := range []annotation.Annotation{under, over} {
		if err := r.Append(a); err != nil {
			t.Fatal(err)
		}
	}
	got, ok := r.HitTest("A", r2.Vec{X: 0, Y: 50}, 2)
	if !ok || got.ID() != over.ID() {
		t.Errorf("hit %v, want the topmost rectangle", got)
	}
}

func TestClearEmptiesEverything(t *testing.T) {
	r := newRegistry(t, "A")
	if err := r.Append(pen("A", 0)); err != nil {
		t.Fatal(err)
	}
	r.Clear()
	if len(r.Images()) != 0 || r.CanUndo() || r.Modified() {
		t.Error("clear left state behind")
	}
}
