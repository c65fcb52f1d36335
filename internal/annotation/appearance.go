package annotation

import (
	"fmt"
	"image"
	"math"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/pkg/geometry"
)

// DefaultMinPickWidth is the narrowest pick helper stroke.
const DefaultMinPickWidth = 10.0

// RenderOptions tune appearance generation.
type RenderOptions struct {
	// MinPickWidth floors the pick helper stroke width.
	MinPickWidth float64
}

func (o RenderOptions) pickWidth(stroke float64) float64 {
	floor := o.MinPickWidth
	if floor <= 0 {
		floor = DefaultMinPickWidth
	}
	return math.Max(stroke, floor)
}

// Stroke describes a stroked outline.
type Stroke struct {
	Color gg.RGBA
	Width float64
	Dash  []float64
}

// TextBlock is text laid out inside an oriented box. Lines are wrapped at
// draw time with the face the renderer supplies.
type TextBlock struct {
	Content  string
	Box      geometry.OrientedBox
	Size     float64
	Color    gg.RGBA
	Align    text.Alignment
	Centered bool
}

// Raster is an image drawn into an oriented box.
type Raster struct {
	Image image.Image
	Box   geometry.OrientedBox
}

// Primitive is one drawable element.
type Primitive struct {
	Path   *gg.Path
	Stroke *Stroke
	Fill   *gg.RGBA
	Text   *TextBlock
	Raster *Raster
}

// Appearance is the result of rendering one annotation.
type Appearance struct {
	Visible []Primitive
	// Pick is an invisible outline stroked at PickWidth for pointer targeting.
	Pick      *gg.Path
	PickWidth float64
	// Clip keeps the visible primitives inside the shape's region. Nil
	// means unclipped.
	Clip *gg.Path
	// Bounds encloses every visible primitive including stroke width.
	Bounds r2.Box
}

// FaceSource supplies font faces when drawing text blocks.
type FaceSource interface {
	Face(size float64) text.Face
}

// Draw paints the appearance onto dc in image space. Text is skipped when
// faces is nil.
func (a *Appearance) Draw(dc *gg.Context, faces FaceSource) error {
	dc.Push()
	defer dc.Pop()

	if a.Clip != nil {
		dc.DrawPath(a.Clip)
		dc.Clip()
	}
	for i, p := range a.Visible {
		if err := drawPrimitive(dc, p, faces); err != nil {
			return fmt.Errorf("failed to draw primitive %d: %w", i, err)
		}
	}
	return nil
}

func drawPrimitive(dc *gg.Context, p Primitive, faces FaceSource) error {
	if p.Path != nil && p.Fill != nil {
		dc.DrawPath(p.Path)
		dc.SetColor(*p.Fill)
		if err := dc.Fill(); err != nil {
			return err
		}
	}
	if p.Path != nil && p.Stroke != nil {
		dc.DrawPath(p.Path)
		dc.SetColor(p.Stroke.Color)
		dc.SetLineWidth(p.Stroke.Width)
		if len(p.Stroke.Dash) > 0 {
			dc.SetDash(p.Stroke.Dash...)
		} else {
			dc.ClearDash()
		}
		if err := dc.Stroke(); err != nil {
			return err
		}
	}
	if p.Raster != nil {
		drawRaster(dc, p.Raster)
	}
	if p.Text != nil && faces != nil {
		drawText(dc, p.Text, faces)
	}
	return nil
}

// boxFrame maps the unit frame (origin top-left, X along the top edge) onto b.
func boxFrame(b geometry.OrientedBox) geometry.AffineTransform {
	return geometry.Translation(b[0].X, b[0].Y).Compose(geometry.Rotation(b.Angle()))
}

func drawRaster(dc *gg.Context, r *Raster) {
	if r.Image == nil {
		return
	}
	dc.Push()
	dc.Transform(boxFrame(r.Box).ToGG())
	dc.DrawImageEx(gg.ImageBufFromImage(r.Image), gg.DrawImageOptions{
		DstWidth:  r.Box.Width(),
		DstHeight: r.Box.Height(),
		Opacity:   1,
	})
	dc.Pop()
}

func drawText(dc *gg.Context, t *TextBlock, faces FaceSource) {
	face := faces.Face(t.Size)
	if face == nil {
		return
	}
	w, h := t.Box.Width(), t.Box.Height()
	lines := text.WrapText(t.Content, face, w, text.WrapWord)
	lh := face.Metrics().LineHeight()

	dc.Push()
	defer dc.Pop()
	dc.Transform(boxFrame(t.Box).ToGG())
	dc.DrawRectangle(0, 0, w, h)
	dc.Clip()
	dc.SetFont(face)
	dc.SetColor(t.Color)

	y := 0.0
	if t.Centered {
		y = math.Max(0, (h-lh*float64(len(lines)))/2)
	}
	for _, line := range lines {
		switch t.Align {
		case text.AlignCenter:
			dc.DrawStringAnchored(line.Text, w/2, y, 0.5, 0)
		case text.AlignRight:
			dc.DrawStringAnchored(line.Text, w, y, 1, 0)
		default:
			dc.DrawStringAnchored(line.Text, 0, y, 0, 0)
		}
		y += lh
	}
}

// polygonPath builds a closed path through pts.
func polygonPath(pts []r2.Vec) *gg.Path {
	p := gg.NewPath()
	if len(pts) == 0 {
		return p
	}
	p.MoveTo(pts[0].X, pts[0].Y)
	for _, q := range pts[1:] {
		p.LineTo(q.X, q.Y)
	}
	p.Close()
	return p
}

// polylinePath builds an open path through pts.
func polylinePath(pts []r2.Vec) *gg.Path {
	p := gg.NewPath()
	if len(pts) == 0 {
		return p
	}
	p.MoveTo(pts[0].X, pts[0].Y)
	for _, q := range pts[1:] {
		p.LineTo(q.X, q.Y)
	}
	return p
}

// pathBounds returns the bounds of every coordinate in p. Curve control
// points are included so the result is conservative.
func pathBounds(p *gg.Path) r2.Box {
	var pts []r2.Vec
	p.Iterate(func(_ gg.PathVerb, coords []float64) {
		for i := 0; i+1 < len(coords); i += 2 {
			pts = append(pts, r2.Vec{X: coords[i], Y: coords[i+1]})
		}
	})
	return geometry.BoundingBox(pts)
}

func visibleBounds(prims []Primitive) r2.Box {
	var b r2.Box
	for _, p := range prims {
		switch {
		case p.Path != nil:
			pb := pathBounds(p.Path)
			if p.Stroke != nil {
				pb = geometry.Inflate(pb, p.Stroke.Width/2)
			}
			b = geometry.UnionBox(b, pb)
		case p.Text != nil:
			b = geometry.UnionBox(b, p.Text.Box.AABB())
		case p.Raster != nil:
			b = geometry.UnionBox(b, p.Raster.Box.AABB())
		}
	}
	return b
}

func finish(a *Appearance) *Appearance {
	a.Bounds = visibleBounds(a.Visible)
	return a
}
