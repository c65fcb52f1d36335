package create

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
	"image-annotator/pkg/geometry"
)

// ShapeKind selects what a click-drag draws.
type ShapeKind int

const (
	ShapeRect ShapeKind = iota
	ShapeEllipse
	ShapeLine
	ShapeArrow
	ShapeText
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeRect:
		return "rect"
	case ShapeEllipse:
		return "ellipse"
	case ShapeLine:
		return "line"
	case ShapeArrow:
		return "arrow"
	case ShapeText:
		return "text"
	default:
		return "unknown"
	}
}

// MinDrag is the smallest extent, in image pixels, a click-drag must cover
// to produce a shape.
const MinDrag = 2.0

// ShapeController draws one shape per click-drag.
type ShapeController struct {
	list
	kind     ShapeKind
	dragging bool
	from, to r2.Vec
}

// NewShapeController creates a click-drag tool on o.
func NewShapeController(o *Overlay, kind ShapeKind, opts ...Option) *ShapeController {
	return &ShapeController{list: list{base: newBase(o, kind.String(), opts)}, kind: kind}
}

// Press starts a drag. Presses off the image are ignored.
func (c *ShapeController) Press(p r2.Vec) {
	q, ok := c.overlay.ToImage(p)
	if !ok {
		return
	}
	c.dragging = true
	c.from, c.to = q, q
}

// Move follows the pointer, clamped to the image.
func (c *ShapeController) Move(p r2.Vec) {
	if c.dragging {
		c.to = c.overlay.Clamp(p)
	}
}

// Release completes the shape when the drag was large enough.
func (c *ShapeController) Release(p r2.Vec) {
	if !c.dragging {
		return
	}
	c.dragging = false
	c.to = c.overlay.Clamp(p)
	if !c.bigEnough() {
		return
	}
	c.push(c.build())
}

func (c *ShapeController) bigEnough() bool {
	switch c.kind {
	case ShapeLine, ShapeArrow:
		return geometry.Distance(c.from, c.to) >= MinDrag
	default:
		return math.Abs(c.to.X-c.from.X) >= MinDrag && math.Abs(c.to.Y-c.from.Y) >= MinDrag
	}
}

func (c *ShapeController) build() annotation.Annotation {
	id := c.overlay.ImageID()
	box := geometry.BoundingBox([]r2.Vec{c.from, c.to})
	center, size := box.Center(), box.Size()
	switch c.kind {
	case ShapeEllipse:
		e := annotation.NewEllipse(id, center, size.X/2, size.Y/2, 0, c.style)
		e.Cloud, e.CloudArc = c.cloud, c.cloudArc
		return e
	case ShapeLine:
		return annotation.NewLine(id, c.from, c.to, c.style)
	case ShapeArrow:
		return annotation.NewArrow(id, c.from, c.to, c.style)
	case ShapeText:
		return annotation.NewText(id, geometry.OrientedBoxFromAABB(box), "")
	default:
		r := annotation.NewRect(id, center, size.X, size.Y, 0, c.style)
		r.Cloud, r.CloudArc = c.cloud, c.cloudArc
		return r
	}
}

// Draft returns the completed shapes and the one being dragged.
func (c *ShapeController) Draft() []annotation.Annotation {
	out := append([]annotation.Annotation(nil), c.elements...)
	if c.dragging && c.bigEnough() {
		out = append(out, c.build())
	}
	return out
}
