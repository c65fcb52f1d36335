package annotation

import (
	"fmt"

	"github.com/gogpu/gg"
)

// Default style values.
const (
	DefaultColor       = "#e53935"
	DefaultStrokeWidth = 2.0
	DefaultCloudArc    = 12.0
	DefaultFontSize    = 14.0
)

// Style is the stroke and fill of a shape. Colors are hex strings so they
// survive serialization unchanged.
type Style struct {
	Color   string    `json:"color"`
	Width   float64   `json:"width"`
	Dash    []float64 `json:"dash,omitempty"`
	Opacity float64   `json:"opacity,omitempty"`
	Fill    string    `json:"fill,omitempty"`
}

// DefaultStyle returns the stroke style used when none is given.
func DefaultStyle() Style {
	return Style{Color: DefaultColor, Width: DefaultStrokeWidth, Opacity: 1}
}

func (s Style) clone() Style {
	c := s
	if s.Dash != nil {
		c.Dash = append([]float64(nil), s.Dash...)
	}
	return c
}

func (s Style) validate() error {
	if _, err := gg.ParseHex(s.Color); err != nil {
		return fmt.Errorf("stroke color %q: %w", s.Color, err)
	}
	if s.Fill != "" {
		if _, err := gg.ParseHex(s.Fill); err != nil {
			return fmt.Errorf("fill color %q: %w", s.Fill, err)
		}
	}
	if s.Width < 0 {
		return fmt.Errorf("negative stroke width %v", s.Width)
	}
	for _, d := range s.Dash {
		if d < 0 {
			return fmt.Errorf("negative dash length %v", d)
		}
	}
	return nil
}

func (s Style) opacity() float64 {
	if s.Opacity <= 0 || s.Opacity > 1 {
		return 1
	}
	return s.Opacity
}

func (s Style) stroke() *Stroke {
	if s.Width <= 0 {
		return nil
	}
	c := gg.Hex(s.Color)
	c.A *= s.opacity()
	return &Stroke{Color: c, Width: s.Width, Dash: s.Dash}
}

func (s Style) fill() *gg.RGBA {
	if s.Fill == "" {
		return nil
	}
	c := gg.Hex(s.Fill)
	c.A *= s.opacity()
	return &c
}
