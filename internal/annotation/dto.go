package annotation

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is the serialized form of a vertex.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func pointOf(v r2.Vec) Point { return Point{X: v.X, Y: v.Y} }

func (p Point) vec() r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

func pointsOf(vs []r2.Vec) []Point {
	out := make([]Point, len(vs))
	for i, v := range vs {
		out[i] = pointOf(v)
	}
	return out
}

func vecsOf(ps []Point) []r2.Vec {
	out := make([]r2.Vec, len(ps))
	for i, p := range ps {
		out[i] = p.vec()
	}
	return out
}

func styleRef(s Style) *Style {
	c := s.clone()
	return &c
}

// DTO is the serialization contract shared by every kind. Common fields are
// always present; kind-specific fields are omitted when unused.
type DTO struct {
	Kind         Kind      `json:"kind"`
	ID           string    `json:"id"`
	ImageID      string    `json:"imageId"`
	DateCreated  time.Time `json:"dateCreated"`
	DateModified time.Time `json:"dateModified"`
	Author       string    `json:"author"`
	TextContent  string    `json:"textContent,omitempty"`
	Rotation     float64   `json:"rotation,omitempty"`

	Style *Style `json:"style,omitempty"`

	// pen
	Paths [][]float64 `json:"paths,omitempty"`

	// rect, stamp, note
	Center *Point  `json:"center,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`

	// ellipse
	RadiusX float64 `json:"radiusX,omitempty"`
	RadiusY float64 `json:"radiusY,omitempty"`

	// rect, ellipse, polygon
	Cloud    bool    `json:"cloud,omitempty"`
	CloudArc float64 `json:"cloudArc,omitempty"`

	// polyline, polygon, line
	Vertices []Point  `json:"vertices,omitempty"`
	Endings  []Ending `json:"endings,omitempty"`

	// line
	Caption         string  `json:"caption,omitempty"`
	CaptionTop      bool    `json:"captionTop,omitempty"`
	LeaderLength    float64 `json:"leaderLength,omitempty"`
	LeaderExtension float64 `json:"leaderExtension,omitempty"`
	LeaderOffset    float64 `json:"leaderOffset,omitempty"`

	// text
	Points        []Point       `json:"points,omitempty"`
	Callout       []Point       `json:"callout,omitempty"`
	CalloutEnding Ending        `json:"calloutEnding,omitempty"`
	Justification Justification `json:"justification,omitempty"`
	FontSize      float64       `json:"fontSize,omitempty"`
	FontColor     string        `json:"fontColor,omitempty"`

	// stamp
	StampType StampType `json:"stampType,omitempty"`
	Payload   string    `json:"payload,omitempty"`

	// note
	Icon NoteIcon `json:"icon,omitempty"`
}

func invalid(d DTO, format string, args ...interface{}) error {
	return fmt.Errorf("%s %q: %s: %w", d.Kind, d.ID, fmt.Sprintf(format, args...), ErrInvalidDTO)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func finitePoints(ps []Point) bool {
	for _, p := range ps {
		if !finite(p.X, p.Y) {
			return false
		}
	}
	return true
}

func (d DTO) style(def Style) (Style, error) {
	if d.Style == nil {
		return def, nil
	}
	s := d.Style.clone()
	if s.Color == "" {
		s.Color = def.Color
	}
	if err := s.validate(); err != nil {
		return Style{}, invalid(d, "%v", err)
	}
	return s, nil
}

func (d DTO) endings() ([2]Ending, error) {
	var e [2]Ending
	switch len(d.Endings) {
	case 0:
	case 2:
		for i, end := range d.Endings {
			if err := end.validate(); err != nil {
				return e, invalid(d, "%v", err)
			}
			e[i] = end
		}
	default:
		return e, invalid(d, "want 0 or 2 endings, got %d", len(d.Endings))
	}
	return e, nil
}

func (d DTO) center() (r2.Vec, error) {
	if d.Center == nil {
		return r2.Vec{}, invalid(d, "missing center")
	}
	if !finite(d.Center.X, d.Center.Y) {
		return r2.Vec{}, invalid(d, "non-finite center")
	}
	return d.Center.vec(), nil
}

func (d DTO) size(w, h float64) error {
	if !finite(w, h) || w < 0 || h < 0 {
		return invalid(d, "invalid size %v×%v", w, h)
	}
	return nil
}

// FromDTO builds an annotation from its DTO. A malformed DTO fails with an
// error wrapping ErrInvalidDTO; only this call is affected.
func FromDTO(d DTO) (Annotation, error) {
	if d.ID == "" {
		return nil, invalid(d, "missing id")
	}
	if d.ImageID == "" {
		return nil, invalid(d, "missing imageId")
	}
	if !finite(d.Rotation) {
		return nil, invalid(d, "non-finite rotation")
	}
	if d.DateModified.Before(d.DateCreated) {
		d.DateModified = d.DateCreated
	}
	base := baseFromDTO(d)

	switch d.Kind {
	case KindPen:
		st, err := d.style(DefaultStyle())
		if err != nil {
			return nil, err
		}
		if len(d.Paths) == 0 {
			return nil, invalid(d, "no paths")
		}
		for i, p := range d.Paths {
			if len(p) < 2 || len(p)%2 != 0 {
				return nil, invalid(d, "path %d has %d coordinates", i, len(p))
			}
			if !finite(p...) {
				return nil, invalid(d, "path %d has non-finite coordinates", i)
			}
		}
		base.Rotation = 0
		return &Pen{Base: base, Paths: copyPaths(d.Paths), Style: st}, nil

	case KindRect:
		st, err := d.style(DefaultStyle())
		if err != nil {
			return nil, err
		}
		c, err := d.center()
		if err != nil {
			return nil, err
		}
		if err := d.size(d.Width, d.Height); err != nil {
			return nil, err
		}
		return &Rect{Base: base, box: box{Center: c, Width: d.Width, Height: d.Height}, Style: st, Cloud: d.Cloud, CloudArc: d.CloudArc}, nil

	case KindEllipse:
		st, err := d.style(DefaultStyle())
		if err != nil {
			return nil, err
		}
		c, err := d.center()
		if err != nil {
			return nil, err
		}
		if err := d.size(d.RadiusX, d.RadiusY); err != nil {
			return nil, err
		}
		return &Ellipse{Base: base, box: box{Center: c, Width: 2 * d.RadiusX, Height: 2 * d.RadiusY}, Style: st, Cloud: d.Cloud, CloudArc: d.CloudArc}, nil

	case KindPolyline:
		st, err := d.style(DefaultStyle())
		if err != nil {
			return nil, err
		}
		if len(d.Vertices) < 2 || !finitePoints(d.Vertices) {
			return nil, invalid(d, "need at least 2 finite vertices, got %d", len(d.Vertices))
		}
		ends, err := d.endings()
		if err != nil {
			return nil, err
		}
		base.Rotation = 0
		return &Polyline{Base: base, Vertices: vecsOf(d.Vertices), Endings: ends, Style: st}, nil

	case KindPolygon:
		st, err := d.style(DefaultStyle())
		if err != nil {
			return nil, err
		}
		if len(d.Vertices) < 3 || !finitePoints(d.Vertices) {
			return nil, invalid(d, "need at least 3 finite vertices, got %d", len(d.Vertices))
		}
		base.Rotation = 0
		return &Polygon{Base: base, Vertices: vecsOf(d.Vertices), Style: st, Cloud: d.Cloud, CloudArc: d.CloudArc}, nil

	case KindLine:
		st, err := d.style(DefaultStyle())
		if err != nil {
			return nil, err
		}
		if len(d.Vertices) != 2 || !finitePoints(d.Vertices) {
			return nil, invalid(d, "need exactly 2 finite vertices, got %d", len(d.Vertices))
		}
		ends, err := d.endings()
		if err != nil {
			return nil, err
		}
		if !finite(d.LeaderLength, d.LeaderExtension, d.LeaderOffset) {
			return nil, invalid(d, "non-finite leader lengths")
		}
		base.Rotation = 0
		return &Line{
			Base:            base,
			Vertices:        [2]r2.Vec{d.Vertices[0].vec(), d.Vertices[1].vec()},
			Endings:         ends,
			Style:           st,
			Caption:         d.Caption,
			CaptionTop:      d.CaptionTop,
			LeaderLength:    d.LeaderLength,
			LeaderExtension: d.LeaderExtension,
			LeaderOffset:    d.LeaderOffset,
		}, nil

	case KindText:
		st, err := d.style(Style{Color: "#000000"})
		if err != nil {
			return nil, err
		}
		if len(d.Points) != 8 || !finitePoints(d.Points) {
			return nil, invalid(d, "need exactly 8 finite structural points, got %d", len(d.Points))
		}
		if n := len(d.Callout); (n != 0 && n != 3) || !finitePoints(d.Callout) {
			return nil, invalid(d, "need 0 or 3 finite callout points, got %d", n)
		}
		if err := d.CalloutEnding.validate(); err != nil {
			return nil, invalid(d, "%v", err)
		}
		t := &Text{
			Base:          base,
			CalloutEnding: d.CalloutEnding,
			Justification: d.Justification,
			FontSize:      d.FontSize,
			FontColor:     d.FontColor,
			Style:         st,
		}
		switch t.Justification {
		case "":
			t.Justification = JustifyLeft
		case JustifyLeft, JustifyCenter, JustifyRight:
		default:
			return nil, invalid(d, "unknown justification %q", string(d.Justification))
		}
		if t.FontSize <= 0 {
			t.FontSize = DefaultFontSize
		}
		if t.FontColor == "" {
			t.FontColor = "#000000"
		}
		if err := (Style{Color: t.FontColor}).validate(); err != nil {
			return nil, invalid(d, "font %v", err)
		}
		copy(t.Points[:], vecsOf(d.Points))
		if len(d.Callout) == 3 {
			t.Callout = vecsOf(d.Callout)
		}
		return t, nil

	case KindStamp:
		c, err := d.center()
		if err != nil {
			return nil, err
		}
		if err := d.size(d.Width, d.Height); err != nil {
			return nil, err
		}
		switch {
		case d.Payload != "":
			if err := validStampPayload(d.Payload); err != nil {
				return nil, invalid(d, "%v", err)
			}
		case !d.StampType.Valid():
			return nil, invalid(d, "unknown stamp type %q", string(d.StampType))
		}
		return &Stamp{Base: base, box: box{Center: c, Width: d.Width, Height: d.Height}, Type: d.StampType, Payload: d.Payload}, nil

	case KindNote:
		c, err := d.center()
		if err != nil {
			return nil, err
		}
		if err := d.Icon.validate(); err != nil {
			return nil, invalid(d, "%v", err)
		}
		w, h := d.Width, d.Height
		if w <= 0 || h <= 0 {
			w, h = DefaultNoteSize, DefaultNoteSize
		}
		if err := d.size(w, h); err != nil {
			return nil, err
		}
		base.Rotation = 0
		return &Note{Base: base, box: box{Center: c, Width: w, Height: h}, Icon: d.Icon}, nil
	}
	return nil, fmt.Errorf("%q: %w", string(d.Kind), ErrUnknownKind)
}

// FromDTOAs is FromDTO for a caller that expects a specific kind.
func FromDTOAs(want Kind, d DTO) (Annotation, error) {
	if d.Kind != want {
		return nil, fmt.Errorf("want %s, got %s: %w", want, d.Kind, ErrKindMismatch)
	}
	return FromDTO(d)
}

// ToDTOs serializes annotations in order.
func ToDTOs(anns []Annotation) []DTO {
	out := make([]DTO, len(anns))
	for i, a := range anns {
		out[i] = a.ToDTO()
	}
	return out
}

// FromDTOs builds annotations in order. It stops at the first invalid DTO
// and reports its index.
func FromDTOs(dtos []DTO) ([]Annotation, error) {
	out := make([]Annotation, 0, len(dtos))
	for i, d := range dtos {
		a, err := FromDTO(d)
		if err != nil {
			return nil, fmt.Errorf("annotation %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// MarshalDTOs encodes DTOs as indented JSON text.
func MarshalDTOs(dtos []DTO) ([]byte, error) {
	data, err := json.MarshalIndent(dtos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal annotations: %w", err)
	}
	return data, nil
}

// UnmarshalDTOs decodes the text form produced by MarshalDTOs.
func UnmarshalDTOs(data []byte) ([]DTO, error) {
	var dtos []DTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("failed to parse annotations: %w", err)
	}
	return dtos, nil
}
