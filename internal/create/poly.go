package create

import (
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
)

// PolyController accumulates polyline or polygon vertices, one per click,
// until saved.
type PolyController struct {
	base
	closed   bool
	vertices []r2.Vec
	hover    r2.Vec
	hovering bool
}

// NewPolylineController creates an open-path tool on o.
func NewPolylineController(o *Overlay, opts ...Option) *PolyController {
	return &PolyController{base: newBase(o, "polyline", opts)}
}

// NewPolygonController creates a closed-path tool on o.
func NewPolygonController(o *Overlay, opts ...Option) *PolyController {
	return &PolyController{base: newBase(o, "polygon", opts), closed: true}
}

func (c *PolyController) minVertices() int {
	if c.closed {
		return 3
	}
	return 2
}

// Press adds a vertex.
func (c *PolyController) Press(p r2.Vec) {
	q, ok := c.overlay.ToImage(p)
	if !ok {
		return
	}
	c.vertices = append(c.vertices, q)
	c.notify(c.State())
}

// Move tracks the rubber-band point drawn after the last vertex.
func (c *PolyController) Move(p r2.Vec) {
	c.hover, c.hovering = c.overlay.ToImage(p)
}

// Release does nothing; vertices are placed on press.
func (c *PolyController) Release(r2.Vec) {}

// State reports the vertex count.
func (c *PolyController) State() Change {
	n := len(c.vertices)
	return Change{Elements: n, CanSave: n >= c.minVertices(), CanUndo: n > 0, CanClear: n > 0}
}

// UndoLast removes the last vertex.
func (c *PolyController) UndoLast() {
	if len(c.vertices) == 0 {
		return
	}
	c.vertices = c.vertices[:len(c.vertices)-1]
	c.notify(c.State())
}

// Clear removes every vertex.
func (c *PolyController) Clear() {
	if len(c.vertices) == 0 {
		return
	}
	c.vertices = nil
	c.notify(c.State())
}

func (c *PolyController) build(vertices []r2.Vec) annotation.Annotation {
	if c.closed {
		pg := annotation.NewPolygon(c.overlay.ImageID(), vertices, c.style)
		pg.Cloud, pg.CloudArc = c.cloud, c.cloudArc
		return pg
	}
	return annotation.NewPolyline(c.overlay.ImageID(), vertices, c.style)
}

// Save appends the shape. Too few vertices saves nothing.
func (c *PolyController) Save() ([]annotation.Annotation, error) {
	if !c.State().CanSave {
		return nil, nil
	}
	saved, _, err := c.save([]annotation.Annotation{c.build(c.vertices)})
	if err != nil {
		return nil, err
	}
	c.vertices = nil
	c.notify(c.State())
	return saved, nil
}

// Draft returns the path so far, extended to the pointer.
func (c *PolyController) Draft() []annotation.Annotation {
	vs := append([]r2.Vec(nil), c.vertices...)
	if c.hovering && len(vs) > 0 {
		vs = append(vs, c.hover)
	}
	if len(vs) < 2 {
		return nil
	}
	return []annotation.Annotation{c.build(vs)}
}
