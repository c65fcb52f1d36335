package annotation

import (
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/pkg/geometry"
)

// Polyline is an open chain of vertices with optional end decorations.
type Polyline struct {
	Base
	Vertices []r2.Vec
	Endings  [2]Ending
	Style    Style
}

// NewPolyline creates a polyline through vertices.
func NewPolyline(imageID string, vertices []r2.Vec, style Style) *Polyline {
	return &Polyline{Base: newBase(KindPolyline, imageID), Vertices: copyPoints(vertices), Style: style}
}

func (p *Polyline) pad() float64 {
	if p.Endings[0].none() && p.Endings[1].none() {
		return p.Style.Width / 2
	}
	return endingSize(p.Style.Width)/2 + p.Style.Width/2
}

func (p *Polyline) bounds() (geometry.OrientedBox, r2.Box) {
	b := geometry.Inflate(geometry.BoundingBox(p.Vertices), p.pad())
	return geometry.OrientedBoxFromAABB(b), b
}

// BBox returns the oriented bounding box.
func (p *Polyline) BBox() geometry.OrientedBox { p.refresh(p); return p.bbox }

// AABB returns the axis-aligned bounding box.
func (p *Polyline) AABB() r2.Box { p.refresh(p); return p.aabb }

// ApplyTransform maps every vertex through m.
func (p *Polyline) ApplyTransform(m geometry.AffineTransform, undoable bool) {
	p.transform(m, undoable, true, p.apply, p.memento)
}

func (p *Polyline) apply(m geometry.AffineTransform) { m.ApplyAll(p.Vertices) }

func (p *Polyline) memento() func() {
	saved := copyPoints(p.Vertices)
	return func() { p.Vertices = copyPoints(saved) }
}

// Render draws the chain and its endings.
func (p *Polyline) Render(opts RenderOptions) (*Appearance, error) {
	path := polylinePath(p.Vertices)
	a := &Appearance{
		Visible:   []Primitive{{Path: path, Stroke: p.Style.stroke()}},
		Pick:      path.Clone(),
		PickWidth: opts.pickWidth(p.Style.Width),
	}
	if n := len(p.Vertices); n >= 2 {
		if prim, ok := endingPrimitive(p.Endings[0], p.Vertices[0], p.Vertices[1], p.Style); ok {
			a.Visible = append(a.Visible, prim)
		}
		if prim, ok := endingPrimitive(p.Endings[1], p.Vertices[n-1], p.Vertices[n-2], p.Style); ok {
			a.Visible = append(a.Visible, prim)
		}
	}
	return finish(a), nil
}

// HitTest reports whether pt lies within tol of the chain.
func (p *Polyline) HitTest(pt r2.Vec, tol float64) bool {
	reach := tol + p.Style.Width/2
	if !geometry.BoxContains(p.AABB(), pt, tol) {
		return false
	}
	return geometry.DistanceToPolyline(pt, p.Vertices, false) <= reach
}

// ToDTO serializes the polyline.
func (p *Polyline) ToDTO() DTO {
	d := DTO{Vertices: pointsOf(p.Vertices), Style: styleRef(p.Style)}
	if !p.Endings[0].none() || !p.Endings[1].none() {
		d.Endings = []Ending{p.Endings[0], p.Endings[1]}
	}
	p.header(&d)
	return d
}

// Clone returns a detached deep copy.
func (p *Polyline) Clone() Annotation {
	c := *p
	c.Base = p.Base.clone()
	c.Vertices = copyPoints(p.Vertices)
	c.Style = p.Style.clone()
	return &c
}

// Polygon is a closed chain of vertices, optionally with a cloud boundary.
type Polygon struct {
	Base
	Vertices []r2.Vec
	Style    Style
	Cloud    bool
	CloudArc float64
}

// NewPolygon creates a polygon through vertices.
func NewPolygon(imageID string, vertices []r2.Vec, style Style) *Polygon {
	return &Polygon{Base: newBase(KindPolygon, imageID), Vertices: copyPoints(vertices), Style: style}
}

func (p *Polygon) arc() float64 {
	if p.CloudArc > 0 {
		return p.CloudArc
	}
	return DefaultCloudArc
}

func (p *Polygon) pad() float64 {
	pad := p.Style.Width / 2
	if p.Cloud {
		pad += cloudPad(p.arc())
	}
	return pad
}

func (p *Polygon) bounds() (geometry.OrientedBox, r2.Box) {
	b := geometry.Inflate(geometry.BoundingBox(p.Vertices), p.pad())
	return geometry.OrientedBoxFromAABB(b), b
}

// BBox returns the oriented bounding box.
func (p *Polygon) BBox() geometry.OrientedBox { p.refresh(p); return p.bbox }

// AABB returns the axis-aligned bounding box.
func (p *Polygon) AABB() r2.Box { p.refresh(p); return p.aabb }

// ApplyTransform maps every vertex through m.
func (p *Polygon) ApplyTransform(m geometry.AffineTransform, undoable bool) {
	p.transform(m, undoable, true, p.apply, p.memento)
}

func (p *Polygon) apply(m geometry.AffineTransform) { m.ApplyAll(p.Vertices) }

func (p *Polygon) memento() func() {
	saved := copyPoints(p.Vertices)
	return func() { p.Vertices = copyPoints(saved) }
}

// Render draws the closed outline or its cloud.
func (p *Polygon) Render(opts RenderOptions) (*Appearance, error) {
	outline := polygonPath(p.Vertices)
	if p.Cloud {
		outline = CloudPath(p.Vertices, p.arc())
	}
	a := &Appearance{
		Visible:   []Primitive{{Path: outline, Stroke: p.Style.stroke(), Fill: p.Style.fill()}},
		Pick:      polygonPath(p.Vertices),
		PickWidth: opts.pickWidth(p.Style.Width),
	}
	return finish(a), nil
}

// HitTest reports whether pt lies on the outline, or inside when filled.
func (p *Polygon) HitTest(pt r2.Vec, tol float64) bool {
	reach := tol + p.pad()
	if !geometry.BoxContains(p.AABB(), pt, tol) {
		return false
	}
	if p.Style.Fill != "" && geometry.PointInPolygon(pt, p.Vertices) {
		return true
	}
	return geometry.DistanceToPolyline(pt, p.Vertices, true) <= reach
}

// ToDTO serializes the polygon.
func (p *Polygon) ToDTO() DTO {
	d := DTO{Vertices: pointsOf(p.Vertices), Cloud: p.Cloud, CloudArc: p.CloudArc, Style: styleRef(p.Style)}
	p.header(&d)
	return d
}

// Clone returns a detached deep copy.
func (p *Polygon) Clone() Annotation {
	c := *p
	c.Base = p.Base.clone()
	c.Vertices = copyPoints(p.Vertices)
	c.Style = p.Style.clone()
	return &c
}
