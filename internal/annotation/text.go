package annotation

import (
	"fmt"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/pkg/geometry"
)

const alignCenter = text.AlignCenter

// Structural point indices of a text box, clockwise from the top-left.
const (
	TopLeft = iota
	TopMiddle
	TopRight
	RightMiddle
	BottomRight
	BottomMiddle
	BottomLeft
	LeftMiddle
)

// Callout point indices.
const (
	CalloutBase = iota
	CalloutKnee
	CalloutTip
)

// Justification aligns text inside its box.
type Justification string

const (
	JustifyLeft   Justification = "left"
	JustifyCenter Justification = "center"
	JustifyRight  Justification = "right"
)

func (j Justification) alignment() text.Alignment {
	switch j {
	case JustifyCenter:
		return text.AlignCenter
	case JustifyRight:
		return text.AlignRight
	}
	return text.AlignLeft
}

// Text is a free text box with an optional callout line. Its geometry is
// eight structural points: the four corners and four side midpoints.
type Text struct {
	Base
	Points        [8]r2.Vec
	Callout       []r2.Vec
	CalloutEnding Ending
	Justification Justification
	FontSize      float64
	FontColor     string
	// Style is the border; a zero width draws no border.
	Style Style
}

// NewText creates a text box occupying b.
func NewText(imageID string, b geometry.OrientedBox, content string) *Text {
	t := &Text{
		Base:          newBase(KindText, imageID),
		Justification: JustifyLeft,
		FontSize:      DefaultFontSize,
		FontColor:     "#000000",
		Style:         Style{Color: "#000000"},
	}
	t.Content = content
	t.setBox(b)
	return t
}

func (t *Text) setBox(b geometry.OrientedBox) {
	t.Points = structuralPoints(b)
	t.Rotation = b.Angle()
}

func structuralPoints(b geometry.OrientedBox) [8]r2.Vec {
	mid := func(i, j int) r2.Vec { return geometry.Lerp(b[i], b[j], 0.5) }
	return [8]r2.Vec{b[0], mid(0, 1), b[1], mid(1, 2), b[2], mid(2, 3), b[3], mid(3, 0)}
}

// SetCallout attaches a callout from base through knee to tip.
func (t *Text) SetCallout(base, knee, tip r2.Vec) {
	t.Callout = []r2.Vec{base, knee, tip}
	if t.CalloutEnding.none() {
		t.CalloutEnding = EndingOpenArrow
	}
	t.Invalidate()
}

// Box returns the text frame built from the four corners.
func (t *Text) Box() geometry.OrientedBox {
	return geometry.OrientedBox{t.Points[TopLeft], t.Points[TopRight], t.Points[BottomRight], t.Points[BottomLeft]}
}

func (t *Text) bounds() (geometry.OrientedBox, r2.Box) {
	b := t.Box()
	aabb := b.AABB()
	if len(t.Callout) > 0 {
		aabb = aabb.Union(geometry.BoundingBox(t.Callout))
	}
	return b, aabb
}

// BBox returns the oriented text frame.
func (t *Text) BBox() geometry.OrientedBox { t.refresh(t); return t.bbox }

// AABB returns the axis-aligned box of the frame and the callout.
func (t *Text) AABB() r2.Box { t.refresh(t); return t.aabb }

// ApplyTransform maps every structural and callout point through m.
func (t *Text) ApplyTransform(m geometry.AffineTransform, undoable bool) {
	t.transform(m, undoable, true, t.apply, t.memento)
}

func (t *Text) apply(m geometry.AffineTransform) {
	m.ApplyAll(t.Points[:])
	m.ApplyAll(t.Callout)
	t.Rotation = geometry.NormalizeAngle(geometry.Angle(r2.Sub(t.Points[TopRight], t.Points[TopLeft])))
}

func (t *Text) memento() func() {
	points, callout, rot := t.Points, copyPoints(t.Callout), t.Rotation
	return func() { t.Points, t.Callout, t.Rotation = points, copyPoints(callout), rot }
}

// ResizeTo scales the box along its own axes, keeping the top-left corner,
// so that it measures w×h. It is one undoable edit.
func (t *Text) ResizeTo(w, h float64) {
	b := t.Box()
	cw, ch := b.Width(), b.Height()
	if cw < geometry.Epsilon || ch < geometry.Epsilon || w <= 0 || h <= 0 {
		return
	}
	t.ApplyTransform(geometry.OrientedScaleAbout(b[0], b.Angle(), w/cw, h/ch), true)
}

// Render draws the border, the text and the callout.
func (t *Text) Render(opts RenderOptions) (*Appearance, error) {
	frame := t.Box()
	outline := polygonPath(frame.Points())
	color, err := gg.ParseHex(t.FontColor)
	if err != nil {
		return nil, fmt.Errorf("text %s: font color: %w", t.ID(), err)
	}
	a := &Appearance{
		Pick:      outline.Clone(),
		PickWidth: opts.pickWidth(t.Style.Width),
	}
	if fill := t.Style.fill(); fill != nil || t.Style.Width > 0 {
		a.Visible = append(a.Visible, Primitive{Path: outline, Stroke: t.Style.stroke(), Fill: fill})
	}
	a.Visible = append(a.Visible, Primitive{Text: &TextBlock{
		Content: t.Content,
		Box:     frame,
		Size:    t.FontSize,
		Color:   color,
		Align:   t.Justification.alignment(),
	}})
	if len(t.Callout) == 3 {
		st := t.Style
		if st.Width <= 0 {
			st.Width = 1
		}
		a.Visible = append(a.Visible, Primitive{Path: polylinePath(t.Callout), Stroke: st.stroke()})
		if prim, ok := endingPrimitive(t.CalloutEnding, t.Callout[CalloutTip], t.Callout[CalloutKnee], st); ok {
			a.Visible = append(a.Visible, prim)
		}
		a.Pick.Append(polylinePath(t.Callout))
	}
	return finish(a), nil
}

// HitTest reports whether p is inside the frame or near the callout.
func (t *Text) HitTest(p r2.Vec, tol float64) bool {
	if !geometry.BoxContains(t.AABB(), p, tol) {
		return false
	}
	frame := t.Box()
	if frame.Contains(p) || geometry.DistanceToPolyline(p, frame.Points(), true) <= tol {
		return true
	}
	return len(t.Callout) > 0 && geometry.DistanceToPolyline(p, t.Callout, false) <= tol
}

// ToDTO serializes the text box.
func (t *Text) ToDTO() DTO {
	d := DTO{
		Points:        pointsOf(t.Points[:]),
		Justification: t.Justification,
		FontSize:      t.FontSize,
		FontColor:     t.FontColor,
		Style:         styleRef(t.Style),
	}
	if len(t.Callout) > 0 {
		d.Callout = pointsOf(t.Callout)
		d.CalloutEnding = t.CalloutEnding
	}
	t.header(&d)
	return d
}

// Clone returns a detached deep copy.
func (t *Text) Clone() Annotation {
	c := *t
	c.Base = t.Base.clone()
	c.Callout = copyPoints(t.Callout)
	c.Style = t.Style.clone()
	return &c
}
