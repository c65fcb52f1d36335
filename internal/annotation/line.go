package annotation

import (
	"math"

	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/pkg/geometry"
)

// Line is a straight segment with optional end decorations, caption and
// leader lines. An arrow is a line with an arrow ending.
type Line struct {
	Base
	Vertices [2]r2.Vec
	Endings  [2]Ending
	Style    Style

	// Caption is drawn along the line; CaptionTop places it above the line
	// instead of inline.
	Caption    string
	CaptionTop bool

	// Leader lines run perpendicular from the end points. A positive
	// LeaderLength extends to the left of the line direction, which is up
	// for a line drawn left to right.
	LeaderLength    float64
	LeaderExtension float64
	LeaderOffset    float64
}

// NewLine creates a line from a to b.
func NewLine(imageID string, a, b r2.Vec, style Style) *Line {
	return &Line{Base: newBase(KindLine, imageID), Vertices: [2]r2.Vec{a, b}, Style: style}
}

// NewArrow creates a line with a closed arrow at b.
func NewArrow(imageID string, a, b r2.Vec, style Style) *Line {
	l := NewLine(imageID, a, b, style)
	l.Endings[1] = EndingClosedArrow
	return l
}

// frame returns the line's local frame: origin at the first vertex, +X
// along the line, +Y along the leader direction.
func (l *Line) frame() (origin, dir, normal r2.Vec, length float64) {
	d := r2.Sub(l.Vertices[1], l.Vertices[0])
	length = r2.Norm(d)
	if length < geometry.Epsilon {
		dir = r2.Vec{X: 1}
	} else {
		dir = r2.Scale(1/length, d)
	}
	return l.Vertices[0], dir, r2.Vec{X: dir.Y, Y: -dir.X}, length
}

// leaderSpan returns the local offsets of the drawn segment and the far
// ends of the leader lines.
func (l *Line) leaderSpan() (lineOffset, near, far float64) {
	sign := 1.0
	if l.LeaderLength < 0 {
		sign = -1
	}
	lineOffset = sign * (math.Abs(l.LeaderOffset) + math.Abs(l.LeaderLength))
	near = sign * math.Abs(l.LeaderOffset)
	far = lineOffset + sign*math.Abs(l.LeaderExtension)
	return lineOffset, near, far
}

func (l *Line) captionHeight() float64 {
	if l.Caption == "" {
		return 0
	}
	return DefaultFontSize * 1.4
}

func (l *Line) bounds() (geometry.OrientedBox, r2.Box) {
	origin, dir, normal, length := l.frame()
	pad := l.Style.Width / 2
	if !l.Endings[0].none() || !l.Endings[1].none() {
		pad = math.Max(pad, endingSize(l.Style.Width)/2+l.Style.Width/2)
	}
	lineOffset, near, far := l.leaderSpan()
	lo := math.Min(math.Min(lineOffset, near), far) - pad
	hi := math.Max(math.Max(lineOffset, near), far) + pad
	if ch := l.captionHeight(); ch > 0 && l.CaptionTop {
		hi = math.Max(hi, lineOffset+ch)
	} else if ch > 0 {
		lo = math.Min(lo, lineOffset-ch/2)
		hi = math.Max(hi, lineOffset+ch/2)
	}
	at := func(x, y float64) r2.Vec {
		return r2.Add(origin, r2.Add(r2.Scale(x, dir), r2.Scale(y, normal)))
	}
	// Corners in top-left, top-right, bottom-right, bottom-left order of
	// the line frame, where "top" is the leader side.
	b := geometry.OrientedBox{
		at(-pad, hi), at(length+pad, hi), at(length+pad, lo), at(-pad, lo),
	}
	return b, b.AABB()
}

// BBox returns the oriented bounding box aligned with the line.
func (l *Line) BBox() geometry.OrientedBox { l.refresh(l); return l.bbox }

// AABB returns the axis-aligned bounding box.
func (l *Line) AABB() r2.Box { l.refresh(l); return l.aabb }

// ApplyTransform maps both end points through m.
func (l *Line) ApplyTransform(m geometry.AffineTransform, undoable bool) {
	l.transform(m, undoable, true, l.apply, l.memento)
}

func (l *Line) apply(m geometry.AffineTransform) {
	l.Vertices[0] = m.Apply(l.Vertices[0])
	l.Vertices[1] = m.Apply(l.Vertices[1])
}

func (l *Line) memento() func() {
	saved := l.Vertices
	return func() { l.Vertices = saved }
}

// Segment returns the drawn segment, offset by the leader lines.
func (l *Line) Segment() (a, b r2.Vec) {
	_, _, normal, _ := l.frame()
	lineOffset, _, _ := l.leaderSpan()
	off := r2.Scale(lineOffset, normal)
	return r2.Add(l.Vertices[0], off), r2.Add(l.Vertices[1], off)
}

// Render draws the segment, leaders, endings and caption.
func (l *Line) Render(opts RenderOptions) (*Appearance, error) {
	a0, a1 := l.Segment()
	_, dir, normal, length := l.frame()
	stroke := l.Style.stroke()

	seg := polylinePath([]r2.Vec{a0, a1})
	app := &Appearance{
		Visible:   []Primitive{{Path: seg, Stroke: stroke}},
		Pick:      seg.Clone(),
		PickWidth: opts.pickWidth(l.Style.Width),
	}

	if l.LeaderLength != 0 {
		_, near, far := l.leaderSpan()
		for _, v := range l.Vertices {
			leader := polylinePath([]r2.Vec{r2.Add(v, r2.Scale(near, normal)), r2.Add(v, r2.Scale(far, normal))})
			app.Visible = append(app.Visible, Primitive{Path: leader, Stroke: stroke})
		}
	}
	if prim, ok := endingPrimitive(l.Endings[0], a0, a1, l.Style); ok {
		app.Visible = append(app.Visible, prim)
	}
	if prim, ok := endingPrimitive(l.Endings[1], a1, a0, l.Style); ok {
		app.Visible = append(app.Visible, prim)
	}

	if l.Caption != "" && length > geometry.Epsilon {
		ch := l.captionHeight()
		mid := geometry.Lerp(a0, a1, 0.5)
		base := 0.0
		if l.CaptionTop {
			base = ch / 2
		}
		center := r2.Add(mid, r2.Scale(base, normal))
		// Caption box: width along the line, top edge on the leader side.
		half := r2.Scale(length/2, dir)
		up := r2.Scale(ch/2, normal)
		box := geometry.OrientedBox{
			r2.Add(r2.Sub(center, half), up),
			r2.Add(r2.Add(center, half), up),
			r2.Sub(r2.Add(center, half), up),
			r2.Sub(r2.Sub(center, half), up),
		}
		app.Visible = append(app.Visible, Primitive{Text: &TextBlock{
			Content:  l.Caption,
			Box:      box,
			Size:     DefaultFontSize,
			Color:    gg.Hex(l.Style.Color),
			Align:    alignCenter,
			Centered: true,
		}})
	}
	return finish(app), nil
}

// HitTest reports whether p is within tol of the drawn segment.
func (l *Line) HitTest(p r2.Vec, tol float64) bool {
	if !geometry.BoxContains(l.AABB(), p, tol) {
		return false
	}
	a0, a1 := l.Segment()
	return geometry.DistanceToSegment(p, a0, a1) <= tol+l.Style.Width/2
}

// ToDTO serializes the line.
func (l *Line) ToDTO() DTO {
	d := DTO{
		Vertices:        pointsOf(l.Vertices[:]),
		Caption:         l.Caption,
		CaptionTop:      l.CaptionTop,
		LeaderLength:    l.LeaderLength,
		LeaderExtension: l.LeaderExtension,
		LeaderOffset:    l.LeaderOffset,
		Style:           styleRef(l.Style),
	}
	if !l.Endings[0].none() || !l.Endings[1].none() {
		d.Endings = []Ending{l.Endings[0], l.Endings[1]}
	}
	l.header(&d)
	return d
}

// Clone returns a detached deep copy.
func (l *Line) Clone() Annotation {
	c := *l
	c.Base = l.Base.clone()
	c.Style = l.Style.clone()
	return &c
}
