package annotation

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/spatial/r2"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"image-annotator/pkg/geometry"
)

// StampType names a built-in stamp.
type StampType string

const (
	StampApproved            StampType = "Approved"
	StampExperimental        StampType = "Experimental"
	StampNotApproved         StampType = "NotApproved"
	StampAsIs                StampType = "AsIs"
	StampExpired             StampType = "Expired"
	StampNotForPublicRelease StampType = "NotForPublicRelease"
	StampConfidential        StampType = "Confidential"
	StampFinal               StampType = "Final"
	StampSold                StampType = "Sold"
	StampDepartmental        StampType = "Departmental"
	StampForComment          StampType = "ForComment"
	StampTopSecret           StampType = "TopSecret"
	StampDraft               StampType = "Draft"
	StampForPublicRelease    StampType = "ForPublicRelease"
)

var stampLabels = map[StampType]string{
	StampApproved:            "APPROVED",
	StampExperimental:        "EXPERIMENTAL",
	StampNotApproved:         "NOT APPROVED",
	StampAsIs:                "AS IS",
	StampExpired:             "EXPIRED",
	StampNotForPublicRelease: "NOT FOR PUBLIC RELEASE",
	StampConfidential:        "CONFIDENTIAL",
	StampFinal:               "FINAL",
	StampSold:                "SOLD",
	StampDepartmental:        "DEPARTMENTAL",
	StampForComment:          "FOR COMMENT",
	StampTopSecret:           "TOP SECRET",
	StampDraft:               "DRAFT",
	StampForPublicRelease:    "FOR PUBLIC RELEASE",
}

// Label returns the text printed on a preset stamp.
func (s StampType) Label() string { return stampLabels[s] }

// Valid reports whether s is a known preset.
func (s StampType) Valid() bool {
	_, ok := stampLabels[s]
	return ok
}

func (s StampType) color() gg.RGBA {
	switch s {
	case StampApproved, StampFinal, StampForPublicRelease, StampSold:
		return gg.Hex("#2e7d32")
	case StampDraft, StampExperimental, StampForComment, StampAsIs, StampDepartmental:
		return gg.Hex("#1565c0")
	}
	return gg.Hex("#c62828")
}

// Stamp is a preset label or a custom raster image placed in a box.
type Stamp struct {
	Base
	box
	Type StampType
	// Payload is a base64 encoded image for custom stamps.
	Payload string

	decoded image.Image
}

// NewStamp creates a preset stamp.
func NewStamp(imageID string, t StampType, center r2.Vec, width, height float64) *Stamp {
	return &Stamp{Base: newBase(KindStamp, imageID), box: box{Center: center, Width: width, Height: height}, Type: t}
}

// NewImageStamp creates a custom stamp from encoded image bytes. The size
// defaults to the image's own pixel size when width or height is zero.
func NewImageStamp(imageID string, data []byte, center r2.Vec, width, height float64) (*Stamp, error) {
	img, err := decodeStamp(data)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		width, height = float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	}
	s := &Stamp{
		Base:    newBase(KindStamp, imageID),
		box:     box{Center: center, Width: width, Height: height},
		Payload: base64.StdEncoding.EncodeToString(data),
		decoded: img,
	}
	return s, nil
}

func decodeStamp(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode stamp image: %w", err)
	}
	return img, nil
}

// Image returns the decoded custom image, decoding the payload on first use.
func (s *Stamp) Image() (image.Image, error) {
	if s.Payload == "" {
		return nil, nil
	}
	if s.decoded != nil {
		return s.decoded, nil
	}
	data, err := base64.StdEncoding.DecodeString(s.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stamp payload: %w", err)
	}
	img, err := decodeStamp(data)
	if err != nil {
		return nil, err
	}
	s.decoded = img
	return img, nil
}

func (s *Stamp) bounds() (geometry.OrientedBox, r2.Box) {
	b := s.oriented(s.Rotation)
	return b, b.AABB()
}

// BBox returns the oriented bounding box.
func (s *Stamp) BBox() geometry.OrientedBox { s.refresh(s); return s.bbox }

// AABB returns the axis-aligned bounding box.
func (s *Stamp) AABB() r2.Box { s.refresh(s); return s.aabb }

// ApplyTransform maps the stamp box through m.
func (s *Stamp) ApplyTransform(m geometry.AffineTransform, undoable bool) {
	s.transform(m, undoable, false, s.apply, s.memento)
}

func (s *Stamp) apply(m geometry.AffineTransform) { applyBox(&s.box, &s.Rotation, m) }

func (s *Stamp) memento() func() { return boxMemento(&s.box, &s.Rotation) }

// Render draws the custom image, or the preset's frame and label.
func (s *Stamp) Render(opts RenderOptions) (*Appearance, error) {
	frame := s.oriented(s.Rotation)
	outline := polygonPath(frame.Points())
	a := &Appearance{
		Pick:      outline.Clone(),
		PickWidth: opts.pickWidth(0),
		Clip:      outline.Clone(),
	}
	if s.Payload != "" {
		img, err := s.Image()
		if err != nil {
			return nil, fmt.Errorf("stamp %s: %w", s.ID(), err)
		}
		a.Visible = append(a.Visible, Primitive{Raster: &Raster{Image: img, Box: frame}})
		return finish(a), nil
	}

	col := s.Type.color()
	border := 0.06 * min(s.Width, s.Height)
	inner := geometry.NewOrientedBox(s.Center, s.Width-border, s.Height-border, s.Rotation)
	a.Visible = append(a.Visible,
		Primitive{Path: polygonPath(inner.Points()), Stroke: &Stroke{Color: col, Width: border}},
		Primitive{Text: &TextBlock{
			Content:  s.Type.Label(),
			Box:      inner,
			Size:     0.45 * s.Height,
			Color:    col,
			Align:    alignCenter,
			Centered: true,
		}},
	)
	return finish(a), nil
}

// HitTest reports whether p lies inside the stamp.
func (s *Stamp) HitTest(p r2.Vec, tol float64) bool {
	if !geometry.BoxContains(s.AABB(), p, tol) {
		return false
	}
	b := s.BBox()
	return b.Contains(p) || geometry.DistanceToPolyline(p, b.Points(), true) <= tol
}

// ToDTO serializes the stamp.
func (s *Stamp) ToDTO() DTO {
	c := pointOf(s.Center)
	d := DTO{Center: &c, Width: s.Width, Height: s.Height, StampType: s.Type, Payload: s.Payload}
	s.header(&d)
	return d
}

// Clone returns a detached copy sharing the decoded image.
func (s *Stamp) Clone() Annotation {
	c := *s
	c.Base = s.Base.clone()
	return &c
}

func validStampPayload(payload string) error {
	payload = strings.TrimSpace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("stamp payload is not base64: %w", err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("stamp payload is not an image: %w", err)
	}
	return nil
}
