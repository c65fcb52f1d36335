package annotation

import (
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/pkg/geometry"
)

// Pen is a freehand drawing made of one or more strokes. Each stroke is a
// flat x0,y0,x1,y1,... coordinate sequence.
type Pen struct {
	Base
	Paths [][]float64
	Style Style
}

// NewPen creates a pen annotation on imageID.
func NewPen(imageID string, paths [][]float64, style Style) *Pen {
	return &Pen{Base: newBase(KindPen, imageID), Paths: copyPaths(paths), Style: style}
}

func copyPaths(paths [][]float64) [][]float64 {
	out := make([][]float64, len(paths))
	for i, p := range paths {
		out[i] = append([]float64(nil), p...)
	}
	return out
}

func (p *Pen) bounds() (geometry.OrientedBox, r2.Box) {
	var box r2.Box
	for _, path := range p.Paths {
		box = geometry.UnionBox(box, geometry.BoundingBoxFlat(path))
	}
	box = geometry.Inflate(box, p.Style.Width/2)
	return geometry.OrientedBoxFromAABB(box), box
}

// BBox returns the oriented bounding box.
func (p *Pen) BBox() geometry.OrientedBox { p.refresh(p); return p.bbox }

// AABB returns the axis-aligned bounding box.
func (p *Pen) AABB() r2.Box { p.refresh(p); return p.aabb }

// ApplyTransform maps every stroke through m.
func (p *Pen) ApplyTransform(m geometry.AffineTransform, undoable bool) {
	p.transform(m, undoable, true, p.apply, p.memento)
}

func (p *Pen) apply(m geometry.AffineTransform) {
	for _, path := range p.Paths {
		m.ApplyFlat(path)
	}
}

func (p *Pen) memento() func() {
	saved := copyPaths(p.Paths)
	return func() { p.Paths = copyPaths(saved) }
}

// Render returns one stroked path per stroke.
func (p *Pen) Render(opts RenderOptions) (*Appearance, error) {
	a := &Appearance{PickWidth: opts.pickWidth(p.Style.Width)}
	stroke := p.Style.stroke()
	for _, path := range p.Paths {
		gp := polylinePath(geometry.FlatToPoints(path))
		a.Visible = append(a.Visible, Primitive{Path: gp, Stroke: stroke})
		if a.Pick == nil {
			a.Pick = gp.Clone()
		} else {
			a.Pick.Append(gp)
		}
	}
	return finish(a), nil
}

// HitTest reports whether p lies within tol of any stroke.
func (p *Pen) HitTest(pt r2.Vec, tol float64) bool {
	reach := tol + p.Style.Width/2
	if !geometry.BoxContains(p.AABB(), pt, reach) {
		return false
	}
	for _, path := range p.Paths {
		if geometry.DistanceToPolyline(pt, geometry.FlatToPoints(path), false) <= reach {
			return true
		}
	}
	return false
}

// AddStroke appends a stroke. It is used while a pen is being drawn and is
// not an undoable edit.
func (p *Pen) AddStroke(path []float64) {
	p.Paths = append(p.Paths, append([]float64(nil), path...))
	p.touch()
	p.Invalidate()
}

// ToDTO serializes the pen.
func (p *Pen) ToDTO() DTO {
	d := DTO{Paths: copyPaths(p.Paths), Style: styleRef(p.Style)}
	p.header(&d)
	return d
}

// Clone returns a detached deep copy.
func (p *Pen) Clone() Annotation {
	return &Pen{Base: p.Base.clone(), Paths: copyPaths(p.Paths), Style: p.Style.clone()}
}
