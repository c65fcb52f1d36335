// Package annotation provides the annotation model: one concrete type per
// shape kind behind the Annotation interface, their bounding boxes,
// transforms, appearances and DTOs.
//
// Geometry is held in image pixel space. Every shape keeps an oriented
// bounding box (the true rotated rectangle) and a derived axis-aligned box
// used for hit testing and layout. Both are cached and recomputed lazily
// after a mutation.
package annotation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/event"
	"image-annotator/pkg/geometry"
)

var (
	// ErrInvalidDTO is wrapped by every DTO validation failure.
	ErrInvalidDTO = errors.New("invalid annotation DTO")
	// ErrKindMismatch is returned when a DTO does not carry the expected kind.
	ErrKindMismatch = errors.New("annotation kind mismatch")
	// ErrUnknownKind is returned for unrecognized kind tags.
	ErrUnknownKind = errors.New("unknown annotation kind")
)

// Kind tags an annotation variant.
type Kind string

const (
	KindPen      Kind = "pen"
	KindRect     Kind = "rect"
	KindEllipse  Kind = "ellipse"
	KindPolyline Kind = "polyline"
	KindPolygon  Kind = "polygon"
	KindLine     Kind = "line"
	KindText     Kind = "text"
	KindStamp    Kind = "stamp"
	KindNote     Kind = "note"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindPen, KindRect, KindEllipse, KindPolyline, KindPolygon, KindLine, KindText, KindStamp, KindNote}

// Annotation is the capability set shared by every shape kind.
type Annotation interface {
	ID() string
	ImageID() string
	Kind() Kind
	Header() *Base
	Deleted() bool
	SetDeleted(deleted bool)
	// Attach registers the dispatcher that receives edit requests and
	// render changes. Passing nil detaches.
	Attach(d event.Dispatcher)

	// BBox returns the oriented bounding box.
	BBox() geometry.OrientedBox
	// AABB returns the axis-aligned box enclosing BBox and any geometry
	// hanging off it.
	AABB() r2.Box
	// ApplyTransform maps the shape's geometry through m. When undoable is
	// set and a dispatcher is attached, one edit request carrying the
	// inverse is emitted.
	ApplyTransform(m geometry.AffineTransform, undoable bool)
	// Render produces the visible primitives, the pick helper and an
	// optional clip.
	Render(opts RenderOptions) (*Appearance, error)
	// HitTest reports whether p (image space) is within tol of the shape.
	HitTest(p r2.Vec, tol float64) bool
	ToDTO() DTO
	// Clone returns a deep, detached copy with the same id.
	Clone() Annotation
}

// NewID returns a fresh annotation id.
func NewID() string {
	return uuid.NewString()
}

// Base holds the fields common to every annotation. Concrete shapes embed it.
type Base struct {
	id      string
	imageID string
	kind    Kind

	Created  time.Time
	Modified time.Time
	Author   string
	Content  string
	// Rotation in radians. Box shapes derive it from their transform; point
	// shapes keep it at zero.
	Rotation float64

	deleted bool

	bbox  geometry.OrientedBox
	aabb  r2.Box
	dirty bool

	dispatcher event.Dispatcher
}

func newBase(kind Kind, imageID string) Base {
	now := time.Now().UTC()
	return Base{
		id:       NewID(),
		imageID:  imageID,
		kind:     kind,
		Created:  now,
		Modified: now,
		dirty:    true,
	}
}

// ID returns the annotation id.
func (b *Base) ID() string { return b.id }

// ImageID returns the owning image id.
func (b *Base) ImageID() string { return b.imageID }

// Kind returns the kind tag.
func (b *Base) Kind() Kind { return b.kind }

// Header returns b.
func (b *Base) Header() *Base { return b }

// Deleted reports the tombstone flag.
func (b *Base) Deleted() bool { return b.deleted }

// SetDeleted sets the tombstone flag.
func (b *Base) SetDeleted(deleted bool) { b.deleted = deleted }

// Attach sets the dispatcher.
func (b *Base) Attach(d event.Dispatcher) { b.dispatcher = d }

// SetImageID re-homes the annotation. Only valid before it is added to a
// registry.
func (b *Base) SetImageID(id string) { b.imageID = id }

// Invalidate marks the cached boxes stale.
func (b *Base) Invalidate() { b.dirty = true }

func (b *Base) touch() {
	b.Modified = time.Now().UTC()
	if b.Modified.Before(b.Created) {
		b.Modified = b.Created
	}
}

// clone copies the header for a detached duplicate.
func (b *Base) clone() Base {
	c := *b
	c.dispatcher = nil
	c.dirty = true
	return c
}

type bounder interface {
	bounds() (geometry.OrientedBox, r2.Box)
}

func (b *Base) refresh(s bounder) {
	if b.dirty {
		b.bbox, b.aabb = s.bounds()
		b.dirty = false
	}
}

func (b *Base) emit(t event.EventType, data interface{}) {
	if b.dispatcher != nil {
		b.dispatcher.Emit(t, data)
	}
}

func (b *Base) emitRender() {
	b.emit(event.EventChange, event.Change{
		Type:          event.ChangeRender,
		ImageID:       b.imageID,
		AnnotationIDs: []string{b.id},
	})
}

// transform runs one geometry mutation. When exact is set the undo applies
// the inverse matrix; otherwise it restores the state captured by memento,
// which box shapes need because their polar re-derivation drops shear.
func (b *Base) transform(m geometry.AffineTransform, undoable, exact bool, apply func(geometry.AffineTransform), memento func() func()) {
	var restore func()
	inv, invertible := m.Inverse()
	if undoable && (!exact || !invertible) {
		restore = memento()
	}

	apply(m)
	b.touch()
	b.Invalidate()

	if undoable && b.dispatcher != nil {
		if restore == nil {
			restore = func() { apply(inv) }
		}
		b.emit(event.EventEditRequest, event.EditRequest{
			ImageID:      b.imageID,
			AnnotationID: b.id,
			Label:        "transform " + string(b.kind),
			Undo: func() {
				restore()
				b.touch()
				b.Invalidate()
				b.emitRender()
			},
		})
	}
	b.emitRender()
}

func (b *Base) header(d *DTO) {
	d.Kind = b.kind
	d.ID = b.id
	d.ImageID = b.imageID
	d.DateCreated = b.Created
	d.DateModified = b.Modified
	d.Author = b.Author
	d.TextContent = b.Content
	d.Rotation = b.Rotation
}

func baseFromDTO(d DTO) Base {
	return Base{
		id:       d.ID,
		imageID:  d.ImageID,
		kind:     d.Kind,
		Created:  d.DateCreated,
		Modified: d.DateModified,
		Author:   d.Author,
		Content:  d.TextContent,
		Rotation: d.Rotation,
		dirty:    true,
	}
}

func copyPoints(pts []r2.Vec) []r2.Vec {
	if pts == nil {
		return nil
	}
	out := make([]r2.Vec, len(pts))
	copy(out, pts)
	return out
}
