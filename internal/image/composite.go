package image

import (
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"image-annotator/internal/coords"
)

// Rotate returns src turned clockwise by rot, matching the pixel mapping of
// coords.Viewport.
func Rotate(src image.Image, rot coords.Rotation) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	rot.MustValid()

	dw, dh := w, h
	if rot.SwapsAxes() {
		dw, dh = h, w
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	if rot == coords.Rotate0 {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.At(b.Min.X+x, b.Min.Y+y)
			switch rot {
			case coords.Rotate90:
				dst.Set(h-1-y, x, c)
			case coords.Rotate180:
				dst.Set(w-1-x, h-1-y, c)
			default:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}

// Scale resamples src by factor. Factors at or below zero return src.
func Scale(src image.Image, factor float64) image.Image {
	if factor <= 0 || factor == 1 {
		return src
	}
	b := src.Bounds()
	w := max(1, int(float64(b.Dx())*factor+0.5))
	h := max(1, int(float64(b.Dy())*factor+0.5))
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	kernel := xdraw.Interpolator(xdraw.CatmullRom)
	if factor >= 4 {
		kernel = xdraw.NearestNeighbor
	}
	kernel.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// Display returns src as it appears on screen: rotated, then scaled.
func Display(src image.Image, rot coords.Rotation, scale float64) image.Image {
	return Scale(Rotate(src, rot), scale)
}
