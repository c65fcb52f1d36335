package create

import (
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
	"image-annotator/pkg/geometry"
)

// minPenStep is the distance, in image pixels, between recorded samples.
const minPenStep = 1.0

// PenController records freehand strokes while the pointer is held. All
// strokes are saved as one pen annotation.
type PenController struct {
	base
	strokes [][]float64
	current []float64
	last    r2.Vec
	drawing bool
}

// NewPenController creates a freehand tool on o.
func NewPenController(o *Overlay, opts ...Option) *PenController {
	return &PenController{base: newBase(o, "pen", opts)}
}

// Press starts a stroke.
func (c *PenController) Press(p r2.Vec) {
	q, ok := c.overlay.ToImage(p)
	if !ok {
		return
	}
	c.drawing = true
	c.current = []float64{q.X, q.Y}
	c.last = q
}

// Move samples the stroke.
func (c *PenController) Move(p r2.Vec) {
	if !c.drawing {
		return
	}
	q := c.overlay.Clamp(p)
	if geometry.Distance(q, c.last) < minPenStep {
		return
	}
	c.current = append(c.current, q.X, q.Y)
	c.last = q
}

// Release ends the stroke.
func (c *PenController) Release(p r2.Vec) {
	if !c.drawing {
		return
	}
	c.Move(p)
	c.drawing = false
	c.strokes = append(c.strokes, c.current)
	c.current = nil
	c.notify(c.State())
}

// State reports the stroke count.
func (c *PenController) State() Change {
	n := len(c.strokes)
	return Change{Elements: n, CanSave: n > 0, CanUndo: n > 0, CanClear: n > 0}
}

// UndoLast drops the most recent stroke.
func (c *PenController) UndoLast() {
	if len(c.strokes) == 0 {
		return
	}
	c.strokes = c.strokes[:len(c.strokes)-1]
	c.notify(c.State())
}

// Clear drops every stroke.
func (c *PenController) Clear() {
	if len(c.strokes) == 0 {
		return
	}
	c.strokes = nil
	c.notify(c.State())
}

func (c *PenController) pen(strokes [][]float64) *annotation.Pen {
	return annotation.NewPen(c.overlay.ImageID(), strokes, c.style)
}

// Save appends one pen holding every stroke.
func (c *PenController) Save() ([]annotation.Annotation, error) {
	if len(c.strokes) == 0 {
		return nil, nil
	}
	saved, _, err := c.save([]annotation.Annotation{c.pen(c.strokes)})
	if err != nil {
		return nil, err
	}
	c.strokes = nil
	c.notify(c.State())
	return saved, nil
}

// Draft returns the pen as it would be saved, including the stroke in
// progress.
func (c *PenController) Draft() []annotation.Annotation {
	strokes := c.strokes
	if c.drawing {
		strokes = append(append([][]float64(nil), strokes...), c.current)
	}
	if len(strokes) == 0 {
		return nil
	}
	return []annotation.Annotation{c.pen(strokes)}
}
