package create

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
)

// Change describes a controller after a mutation so hosts can enable or
// disable their save, undo and clear affordances.
type Change struct {
	Elements int
	CanSave  bool
	CanUndo  bool
	CanClear bool
}

// Controller is a creation tool. Pointer positions are client points.
type Controller interface {
	Press(p r2.Vec)
	Move(p r2.Vec)
	Release(p r2.Vec)

	// Save appends the accumulated annotations to the registry, each as one
	// undoable command, and empties the controller.
	Save() ([]annotation.Annotation, error)
	// UndoLast drops the most recent element.
	UndoLast()
	// Clear drops every element.
	Clear()

	// Draft returns the annotations that Save would append, plus any shape
	// still being drawn, for preview rendering.
	Draft() []annotation.Annotation
	State() Change
	OnChange(fn func(Change)) (off func())
	Close()
}

// Option configures a controller.
type Option func(*base)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *base) { b.logger = l }
}

// WithStyle sets the stroke style of created shapes.
func WithStyle(s annotation.Style) Option {
	return func(b *base) { b.style = s }
}

// WithCloud draws rectangles, ellipses and polygons with a cloud border
// of the given arc size.
func WithCloud(arc float64) Option {
	return func(b *base) { b.cloud, b.cloudArc = true, arc }
}

type listener struct {
	id int
	fn func(Change)
}

// base carries the overlay, options and change listeners shared by every
// controller.
type base struct {
	overlay   *Overlay
	logger    *zap.Logger
	style     annotation.Style
	cloud     bool
	cloudArc  float64
	name      string
	nextID    int
	listeners []listener
}

func newBase(o *Overlay, name string, opts []Option) base {
	b := base{overlay: o, logger: zap.NewNop(), style: annotation.DefaultStyle(), name: name}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// OnChange registers fn to receive a Change after every mutation.
func (b *base) OnChange(fn func(Change)) (off func()) {
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listener{id: id, fn: fn})
	return func() {
		for i, l := range b.listeners {
			if l.id == id {
				b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

func (b *base) notify(c Change) {
	for _, l := range b.listeners {
		l.fn(c)
	}
}

// Close detaches the overlay and drops listeners.
func (b *base) Close() {
	b.overlay.Close()
	b.listeners = nil
}

// save appends anns in order. Annotations after a failure are returned as
// the remainder so the caller can keep them.
func (b *base) save(anns []annotation.Annotation) (saved, rest []annotation.Annotation, err error) {
	reg := b.overlay.Registry()
	for i, a := range anns {
		if err := reg.Append(a); err != nil {
			return anns[:i], anns[i:], fmt.Errorf("%s save: %w", b.name, err)
		}
	}
	b.logger.Debug("annotations saved",
		zap.String("tool", b.name),
		zap.String("image", b.overlay.ImageID()),
		zap.Int("count", len(anns)))
	return anns, nil, nil
}

// list is the element stack of controllers whose elements are complete
// annotations.
type list struct {
	base
	elements []annotation.Annotation
}

func (l *list) State() Change {
	n := len(l.elements)
	return Change{Elements: n, CanSave: n > 0, CanUndo: n > 0, CanClear: n > 0}
}

func (l *list) push(a annotation.Annotation) {
	l.elements = append(l.elements, a)
	l.notify(l.State())
}

func (l *list) UndoLast() {
	if len(l.elements) == 0 {
		return
	}
	l.elements = l.elements[:len(l.elements)-1]
	l.notify(l.State())
}

func (l *list) Clear() {
	if len(l.elements) == 0 {
		return
	}
	l.elements = nil
	l.notify(l.State())
}

func (l *list) Save() ([]annotation.Annotation, error) {
	saved, rest, err := l.save(l.elements)
	l.elements = rest
	l.notify(l.State())
	return saved, err
}

var (
	_ Controller = (*ShapeController)(nil)
	_ Controller = (*PenController)(nil)
	_ Controller = (*PolyController)(nil)
	_ Controller = (*PlaceController)(nil)
)
