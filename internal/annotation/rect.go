package annotation

import (
	"math"

	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/pkg/geometry"
)

// box is the centre/size/rotation geometry shared by rectangles, ellipses
// and stamps. Width and Height are in the shape's own unrotated frame;
// Base.Rotation holds the angle.
type box struct {
	Center r2.Vec
	Width  float64
	Height float64
}

func (b *box) oriented(theta float64) geometry.OrientedBox {
	return geometry.NewOrientedBox(b.Center, b.Width, b.Height, theta)
}

// applyBox maps the centre through m and re-derives size and rotation by
// polar decomposition of the transformed frame.
func applyBox(b *box, rotation *float64, m geometry.AffineTransform) {
	b.Center = m.Apply(b.Center)
	b.Width, b.Height, *rotation = geometry.DecomposeRect(m, b.Width, b.Height, *rotation)
}

func boxMemento(b *box, rotation *float64) func() {
	savedBox, savedRot := *b, *rotation
	return func() { *b, *rotation = savedBox, savedRot }
}

// Rect is a rectangle, optionally drawn with a cloud boundary.
type Rect struct {
	Base
	box
	Style    Style
	Cloud    bool
	CloudArc float64
}

// NewRect creates a rectangle centred at center.
func NewRect(imageID string, center r2.Vec, width, height, rotation float64, style Style) *Rect {
	r := &Rect{Base: newBase(KindRect, imageID), box: box{Center: center, Width: width, Height: height}, Style: style}
	r.Rotation = rotation
	return r
}

func (r *Rect) pad() float64 {
	if r.Cloud {
		return cloudPad(r.arc())
	}
	return 0
}

func (r *Rect) arc() float64 {
	if r.CloudArc > 0 {
		return r.CloudArc
	}
	return DefaultCloudArc
}

func (r *Rect) bounds() (geometry.OrientedBox, r2.Box) {
	pad := 2 * r.pad()
	b := geometry.NewOrientedBox(r.Center, r.Width+pad, r.Height+pad, r.Rotation)
	return b, b.AABB()
}

// BBox returns the oriented bounding box.
func (r *Rect) BBox() geometry.OrientedBox { r.refresh(r); return r.bbox }

// AABB returns the axis-aligned bounding box.
func (r *Rect) AABB() r2.Box { r.refresh(r); return r.aabb }

// ApplyTransform maps the rectangle through m.
func (r *Rect) ApplyTransform(m geometry.AffineTransform, undoable bool) {
	r.transform(m, undoable, false, r.apply, r.memento)
}

func (r *Rect) apply(m geometry.AffineTransform) { applyBox(&r.box, &r.Rotation, m) }

func (r *Rect) memento() func() { return boxMemento(&r.box, &r.Rotation) }

// Render draws the outline, or its cloud, clipped to the bounding box.
func (r *Rect) Render(opts RenderOptions) (*Appearance, error) {
	corners := r.oriented(r.Rotation).Points()
	var outline *gg.Path
	if r.Cloud {
		outline = CloudPath(corners, r.arc())
	} else {
		outline = polygonPath(corners)
	}
	clip := r.BBox()
	a := &Appearance{
		Visible:   []Primitive{{Path: outline, Stroke: r.Style.stroke(), Fill: r.Style.fill()}},
		Pick:      polygonPath(corners),
		PickWidth: opts.pickWidth(r.Style.Width),
		Clip:      polygonPath(geometry.NewOrientedBox(clip.Center(), clip.Width()+r.Style.Width, clip.Height()+r.Style.Width, r.Rotation).Points()),
	}
	return finish(a), nil
}

// HitTest reports whether p lies on the outline, or inside it when filled.
func (r *Rect) HitTest(p r2.Vec, tol float64) bool {
	reach := tol + r.Style.Width/2 + r.pad()
	if !geometry.BoxContains(r.AABB(), p, reach) {
		return false
	}
	corners := r.oriented(r.Rotation).Points()
	if r.Style.Fill != "" && geometry.PointInPolygon(p, corners) {
		return true
	}
	return geometry.DistanceToPolyline(p, corners, true) <= reach
}

// ToDTO serializes the rectangle.
func (r *Rect) ToDTO() DTO {
	c := pointOf(r.Center)
	d := DTO{Center: &c, Width: r.Width, Height: r.Height, Cloud: r.Cloud, CloudArc: r.CloudArc, Style: styleRef(r.Style)}
	r.header(&d)
	return d
}

// Clone returns a detached deep copy.
func (r *Rect) Clone() Annotation {
	c := *r
	c.Base = r.Base.clone()
	c.Style = r.Style.clone()
	return &c
}

// Ellipse is an ellipse inscribed in its width×height box.
type Ellipse struct {
	Base
	box
	Style    Style
	Cloud    bool
	CloudArc float64
}

// NewEllipse creates an ellipse with radii rx, ry centred at center.
func NewEllipse(imageID string, center r2.Vec, rx, ry, rotation float64, style Style) *Ellipse {
	e := &Ellipse{Base: newBase(KindEllipse, imageID), box: box{Center: center, Width: 2 * rx, Height: 2 * ry}, Style: style}
	e.Rotation = rotation
	return e
}

// Radii returns the semi-axes.
func (e *Ellipse) Radii() (rx, ry float64) { return e.Width / 2, e.Height / 2 }

func (e *Ellipse) arc() float64 {
	if e.CloudArc > 0 {
		return e.CloudArc
	}
	return DefaultCloudArc
}

func (e *Ellipse) pad() float64 {
	if e.Cloud {
		return cloudPad(e.arc())
	}
	return 0
}

func (e *Ellipse) bounds() (geometry.OrientedBox, r2.Box) {
	pad := 2 * e.pad()
	b := geometry.NewOrientedBox(e.Center, e.Width+pad, e.Height+pad, e.Rotation)
	return b, b.AABB()
}

// BBox returns the oriented bounding box.
func (e *Ellipse) BBox() geometry.OrientedBox { e.refresh(e); return e.bbox }

// AABB returns the axis-aligned bounding box.
func (e *Ellipse) AABB() r2.Box { e.refresh(e); return e.aabb }

// ApplyTransform maps the ellipse through m.
func (e *Ellipse) ApplyTransform(m geometry.AffineTransform, undoable bool) {
	e.transform(m, undoable, false, e.apply, e.memento)
}

func (e *Ellipse) apply(m geometry.AffineTransform) { applyBox(&e.box, &e.Rotation, m) }

func (e *Ellipse) memento() func() { return boxMemento(&e.box, &e.Rotation) }

func (e *Ellipse) outline() *gg.Path {
	rx, ry := e.Radii()
	if e.Cloud {
		return CloudPath(ellipsePoints(e.Center, rx, ry, e.Rotation, e.arc()), e.arc())
	}
	p := gg.NewPath()
	p.Ellipse(0, 0, rx, ry)
	return p.Transform(geometry.Translation(e.Center.X, e.Center.Y).Compose(geometry.Rotation(e.Rotation)).ToGG())
}

// Render draws the ellipse clipped to its oriented box.
func (e *Ellipse) Render(opts RenderOptions) (*Appearance, error) {
	rx, ry := e.Radii()
	pick := gg.NewPath()
	pick.Ellipse(0, 0, rx, ry)
	clip := e.BBox()
	a := &Appearance{
		Visible:   []Primitive{{Path: e.outline(), Stroke: e.Style.stroke(), Fill: e.Style.fill()}},
		Pick:      pick.Transform(geometry.Translation(e.Center.X, e.Center.Y).Compose(geometry.Rotation(e.Rotation)).ToGG()),
		PickWidth: opts.pickWidth(e.Style.Width),
		Clip:      polygonPath(geometry.NewOrientedBox(clip.Center(), clip.Width()+e.Style.Width, clip.Height()+e.Style.Width, e.Rotation).Points()),
	}
	return finish(a), nil
}

// HitTest reports whether p is near the ellipse outline, or inside when filled.
func (e *Ellipse) HitTest(p r2.Vec, tol float64) bool {
	reach := tol + e.Style.Width/2 + e.pad()
	if !geometry.BoxContains(e.AABB(), p, reach) {
		return false
	}
	rx, ry := e.Radii()
	// Work in the ellipse's own frame.
	local := geometry.Rotation(-e.Rotation).ApplyVector(r2.Sub(p, e.Center))
	if rx < geometry.Epsilon || ry < geometry.Epsilon {
		return math.Abs(local.X) <= rx+reach && math.Abs(local.Y) <= ry+reach
	}
	k := math.Hypot(local.X/rx, local.Y/ry)
	if e.Style.Fill != "" && k <= 1 {
		return true
	}
	// Radial distance approximation, exact on circles.
	r := math.Hypot(local.X, local.Y)
	if r < geometry.Epsilon {
		return math.Min(rx, ry) <= reach
	}
	return math.Abs(r-r/k) <= reach
}

// ToDTO serializes the ellipse.
func (e *Ellipse) ToDTO() DTO {
	c := pointOf(e.Center)
	rx, ry := e.Radii()
	d := DTO{Center: &c, RadiusX: rx, RadiusY: ry, Cloud: e.Cloud, CloudArc: e.CloudArc, Style: styleRef(e.Style)}
	e.header(&d)
	return d
}

// Clone returns a detached deep copy.
func (e *Ellipse) Clone() Annotation {
	c := *e
	c.Base = e.Base.clone()
	c.Style = e.Style.clone()
	return &c
}
