package canvas

import (
	"fmt"

	"go.uber.org/zap"

	"image-annotator/internal/annotation"
	"image-annotator/internal/config"
	"image-annotator/internal/create"
	"image-annotator/internal/session"
)

// Tool represents the current interaction tool.
type Tool int

const (
	ToolSelect Tool = iota
	ToolRect
	ToolEllipse
	ToolLine
	ToolArrow
	ToolText
	ToolPen
	ToolPolyline
	ToolPolygon
	ToolStamp
	ToolNote
)

var toolNames = [...]string{
	ToolSelect:   "Select",
	ToolRect:     "Rectangle",
	ToolEllipse:  "Ellipse",
	ToolLine:     "Line",
	ToolArrow:    "Arrow",
	ToolText:     "Text",
	ToolPen:      "Pen",
	ToolPolyline: "Polyline",
	ToolPolygon:  "Polygon",
	ToolStamp:    "Stamp",
	ToolNote:     "Note",
}

func (t Tool) String() string {
	if t < 0 || int(t) >= len(toolNames) {
		return fmt.Sprintf("Tool(%d)", int(t))
	}
	return toolNames[t]
}

// Tools lists every tool in toolbar order.
func Tools() []Tool {
	out := make([]Tool, len(toolNames))
	for i := range out {
		out[i] = Tool(i)
	}
	return out
}

// ToolSettings are the creation defaults.
type ToolSettings struct {
	Style annotation.Style
	// Cloud draws rectangles, ellipses and polygons with a cloud border.
	Cloud       bool
	CloudArc    float64
	Stamp       annotation.StampType
	StampWidth  float64
	StampHeight float64
	Note        annotation.NoteIcon
	NoteSize    float64
}

// SettingsFromConfig derives tool defaults from preferences.
func SettingsFromConfig(c config.Config) ToolSettings {
	return ToolSettings{
		Style:       c.Style(),
		CloudArc:    c.CloudArc,
		Stamp:       annotation.StampApproved,
		StampWidth:  c.StampWidth,
		StampHeight: c.StampHeight,
		Note:        annotation.IconComment,
		NoteSize:    c.NoteSize,
	}
}

// NewController builds the creation controller for t on an image. The
// select tool has none and returns nil.
func NewController(reg *session.Registry, imageID string, t Tool, s ToolSettings, logger *zap.Logger) (create.Controller, error) {
	if t == ToolSelect {
		return nil, nil
	}
	o, err := create.NewOverlay(reg, imageID)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []create.Option{create.WithLogger(logger.With(zap.Stringer("tool", t))), create.WithStyle(s.Style)}
	if s.Cloud {
		opts = append(opts, create.WithCloud(s.CloudArc))
	}

	var c create.Controller
	switch t {
	case ToolRect:
		c = create.NewShapeController(o, create.ShapeRect, opts...)
	case ToolEllipse:
		c = create.NewShapeController(o, create.ShapeEllipse, opts...)
	case ToolLine:
		c = create.NewShapeController(o, create.ShapeLine, opts...)
	case ToolArrow:
		c = create.NewShapeController(o, create.ShapeArrow, opts...)
	case ToolText:
		c = create.NewShapeController(o, create.ShapeText, opts...)
	case ToolPen:
		c = create.NewPenController(o, opts...)
	case ToolPolyline:
		c = create.NewPolylineController(o, opts...)
	case ToolPolygon:
		c = create.NewPolygonController(o, opts...)
	case ToolStamp:
		c, err = create.NewStampController(o, s.Stamp, s.StampWidth, s.StampHeight, opts...)
	case ToolNote:
		c = create.NewNoteController(o, s.Note, s.NoteSize, opts...)
	default:
		err = fmt.Errorf("unknown tool %d", int(t))
	}
	if err != nil {
		o.Close()
		return nil, err
	}
	return c, nil
}
