package create

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
)

// Default stamp size in image pixels.
const (
	DefaultStampWidth  = 160.0
	DefaultStampHeight = 48.0
)

// PlaceController places one stamp or note per click.
type PlaceController struct {
	list
	place func(center r2.Vec) (annotation.Annotation, error)
}

// NewStampController places preset stamps of type t.
func NewStampController(o *Overlay, t annotation.StampType, width, height float64, opts ...Option) (*PlaceController, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("stamp tool: unknown stamp type %q", string(t))
	}
	if width <= 0 || height <= 0 {
		width, height = DefaultStampWidth, DefaultStampHeight
	}
	c := &PlaceController{list: list{base: newBase(o, "stamp", opts)}}
	c.place = func(center r2.Vec) (annotation.Annotation, error) {
		return annotation.NewStamp(o.ImageID(), t, center, width, height), nil
	}
	return c, nil
}

// NewImageStampController places custom stamps from encoded image bytes.
// Zero sizes use the image's own pixel size.
func NewImageStampController(o *Overlay, data []byte, width, height float64, opts ...Option) (*PlaceController, error) {
	if _, err := annotation.NewImageStamp(o.ImageID(), data, r2.Vec{}, width, height); err != nil {
		return nil, fmt.Errorf("stamp tool: %w", err)
	}
	c := &PlaceController{list: list{base: newBase(o, "stamp", opts)}}
	c.place = func(center r2.Vec) (annotation.Annotation, error) {
		return annotation.NewImageStamp(o.ImageID(), data, center, width, height)
	}
	return c, nil
}

// NewNoteController places notes with the given icon. A size at or below
// zero keeps annotation.DefaultNoteSize.
func NewNoteController(o *Overlay, icon annotation.NoteIcon, size float64, opts ...Option) *PlaceController {
	c := &PlaceController{list: list{base: newBase(o, "note", opts)}}
	c.place = func(center r2.Vec) (annotation.Annotation, error) {
		n := annotation.NewNote(o.ImageID(), icon, center)
		if size > 0 {
			n.Width, n.Height = size, size
		}
		return n, nil
	}
	return c
}

// Press places an element at the pointer.
func (c *PlaceController) Press(p r2.Vec) {
	q, ok := c.overlay.ToImage(p)
	if !ok {
		return
	}
	a, err := c.place(q)
	if err != nil {
		c.logger.Warn("place failed", zap.String("tool", c.name), zap.Error(err))
		return
	}
	c.push(a)
}

// Move does nothing.
func (c *PlaceController) Move(r2.Vec) {}

// Release does nothing.
func (c *PlaceController) Release(r2.Vec) {}

// Draft returns the placed elements.
func (c *PlaceController) Draft() []annotation.Annotation {
	return append([]annotation.Annotation(nil), c.elements...)
}
