package annotation

import (
	"fmt"

	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/pkg/geometry"
)

// NoteIcon selects the glyph drawn for a note.
type NoteIcon string

const (
	IconComment      NoteIcon = "Comment"
	IconKey          NoteIcon = "Key"
	IconNote         NoteIcon = "Note"
	IconHelp         NoteIcon = "Help"
	IconNewParagraph NoteIcon = "NewParagraph"
	IconParagraph    NoteIcon = "Paragraph"
	IconInsert       NoteIcon = "Insert"
)

// DefaultNoteSize is the icon edge length in image pixels.
const DefaultNoteSize = 24.0

func (i NoteIcon) validate() error {
	switch i {
	case IconComment, IconKey, IconNote, IconHelp, IconNewParagraph, IconParagraph, IconInsert:
		return nil
	}
	return fmt.Errorf("unknown note icon %q", string(i))
}

// Note is a sticky-note icon. Its size is fixed in image pixels; transforms
// only move its centre.
type Note struct {
	Base
	box
	Icon NoteIcon
}

// NewNote creates a note centred at center.
func NewNote(imageID string, icon NoteIcon, center r2.Vec) *Note {
	return &Note{
		Base: newBase(KindNote, imageID),
		box:  box{Center: center, Width: DefaultNoteSize, Height: DefaultNoteSize},
		Icon: icon,
	}
}

func (n *Note) bounds() (geometry.OrientedBox, r2.Box) {
	b := n.oriented(0)
	return b, b.AABB()
}

// BBox returns the icon box.
func (n *Note) BBox() geometry.OrientedBox { n.refresh(n); return n.bbox }

// AABB returns the icon box.
func (n *Note) AABB() r2.Box { n.refresh(n); return n.aabb }

// ApplyTransform moves the icon centre through m.
func (n *Note) ApplyTransform(m geometry.AffineTransform, undoable bool) {
	n.transform(m, undoable, true, n.apply, n.memento)
}

func (n *Note) apply(m geometry.AffineTransform) { n.Center = m.Apply(n.Center) }

func (n *Note) memento() func() {
	c := n.Center
	return func() { n.Center = c }
}

// Render draws the note body and its glyph.
func (n *Note) Render(opts RenderOptions) (*Appearance, error) {
	b := n.AABB()
	body := gg.NewPath()
	body.RoundedRectangle(b.Min.X, b.Min.Y, n.Width, n.Height, n.Width/6)
	fill := gg.Hex("#ffd54f")
	ink := &Stroke{Color: gg.Hex("#5d4037"), Width: 1}

	a := &Appearance{
		Visible:   []Primitive{{Path: body, Stroke: ink, Fill: &fill}},
		Pick:      polygonPath(n.BBox().Points()),
		PickWidth: opts.pickWidth(0),
	}

	// Glyph in a unit frame mapped onto the inner area.
	u := geometry.Translation(b.Min.X+n.Width*0.2, b.Min.Y+n.Height*0.2).Compose(geometry.Scale(n.Width*0.6, n.Height*0.6))
	at := func(x, y float64) r2.Vec { return u.Apply(r2.Vec{X: x, Y: y}) }
	lines := func(ys ...float64) *gg.Path {
		p := gg.NewPath()
		for _, y := range ys {
			s, e := at(0, y), at(1, y)
			p.MoveTo(s.X, s.Y)
			p.LineTo(e.X, e.Y)
		}
		return p
	}
	glyph := func(s string) *TextBlock {
		inner := geometry.OrientedBoxFromAABB(r2.Box{Min: at(0, 0), Max: at(1, 1)})
		return &TextBlock{Content: s, Box: inner, Size: n.Height * 0.6, Color: ink.Color, Align: alignCenter, Centered: true}
	}

	switch n.Icon {
	case IconComment:
		tail := polygonPath([]r2.Vec{at(0.15, 0.8), at(0.45, 0.8), at(0.1, 1.05)})
		a.Visible = append(a.Visible,
			Primitive{Path: lines(0.2, 0.45, 0.7), Stroke: ink},
			Primitive{Path: tail, Fill: &ink.Color})
	case IconNote:
		a.Visible = append(a.Visible, Primitive{Path: lines(0.1, 0.35, 0.6, 0.85), Stroke: ink})
	case IconKey:
		head := gg.NewPath()
		c := at(0.25, 0.5)
		head.Circle(c.X, c.Y, n.Width*0.6*0.2)
		shaft := polylinePath([]r2.Vec{at(0.45, 0.5), at(1, 0.5), at(1, 0.7)})
		a.Visible = append(a.Visible, Primitive{Path: head, Stroke: ink}, Primitive{Path: shaft, Stroke: ink})
	case IconInsert:
		caret := polylinePath([]r2.Vec{at(0.1, 0.9), at(0.5, 0.1), at(0.9, 0.9)})
		a.Visible = append(a.Visible, Primitive{Path: caret, Stroke: ink})
	case IconHelp:
		a.Visible = append(a.Visible, Primitive{Text: glyph("?")})
	case IconParagraph:
		a.Visible = append(a.Visible, Primitive{Text: glyph("¶")})
	case IconNewParagraph:
		a.Visible = append(a.Visible, Primitive{Text: glyph("¶+")})
	}
	return finish(a), nil
}

// HitTest reports whether p lies on the icon.
func (n *Note) HitTest(p r2.Vec, tol float64) bool {
	return geometry.BoxContains(n.AABB(), p, tol)
}

// ToDTO serializes the note.
func (n *Note) ToDTO() DTO {
	c := pointOf(n.Center)
	d := DTO{Center: &c, Width: n.Width, Height: n.Height, Icon: n.Icon}
	n.header(&d)
	return d
}

// Clone returns a detached copy.
func (n *Note) Clone() Annotation {
	c := *n
	c.Base = n.Base.clone()
	return &c
}
