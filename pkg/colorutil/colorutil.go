// Package colorutil provides shared color utilities for the annotator.
package colorutil

import (
	"fmt"
	"image/color"
	"math"

	"github.com/gogpu/gg"
)

// Common overlay colors used throughout the application.
var (
	Black     = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Selection = color.RGBA{R: 0, G: 150, B: 255, A: 255}
	Handle    = color.RGBA{R: 255, G: 255, B: 255, A: 230}
)

func unit(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// ToHex formats c as "#rrggbb", or "#rrggbbaa" when not opaque.
func ToHex(c gg.RGBA) string {
	if c.A >= 1 {
		return fmt.Sprintf("#%02x%02x%02x", unit(c.R), unit(c.G), unit(c.B))
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", unit(c.R), unit(c.G), unit(c.B), unit(c.A))
}

// NRGBA converts c to a non-premultiplied 8-bit color.
func NRGBA(c gg.RGBA) color.NRGBA {
	return color.NRGBA{R: unit(c.R), G: unit(c.G), B: unit(c.B), A: unit(c.A)}
}

// WithAlpha returns c with its alpha multiplied by a.
func WithAlpha(c color.Color, a float64) color.NRGBA {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(math.Round(float64(n.A) * math.Max(0, math.Min(1, a))))
	return n
}
