// Package create provides the creation controllers: the pointer plane laid
// over an image and the per-family tools that accumulate new annotations
// until they are saved into the registry.
package create

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/coords"
	"image-annotator/internal/event"
	"image-annotator/internal/session"
)

// Overlay is the pointer plane over one image. It mirrors the image's
// viewport and converts client points into image space.
type Overlay struct {
	reg     *session.Registry
	imageID string
	vp      coords.Viewport
	off     func()
}

// NewOverlay creates an overlay over imageID. It resyncs itself whenever
// the image is re-rendered; hosts call Sync after scrolling or resizing.
func NewOverlay(reg *session.Registry, imageID string) (*Overlay, error) {
	o := &Overlay{reg: reg, imageID: imageID}
	if !o.Sync() {
		return nil, fmt.Errorf("overlay on image %s: %w", imageID, session.ErrImageNotFound)
	}
	o.off = reg.Bus().On(event.EventChange, func(data interface{}) {
		if c, ok := data.(event.Change); ok && c.ImageID == imageID && c.Type == event.ChangeRender {
			o.Sync()
		}
	})
	return o, nil
}

// Sync copies the image's current viewport. It reports false once the
// image is gone.
func (o *Overlay) Sync() bool {
	vp, ok := o.reg.Viewport(o.imageID)
	if ok {
		o.vp = vp
	}
	return ok
}

// Close stops following the image.
func (o *Overlay) Close() {
	if o.off != nil {
		o.off()
		o.off = nil
	}
}

// ImageID returns the image the overlay covers.
func (o *Overlay) ImageID() string { return o.imageID }

// Registry returns the registry the overlay saves into.
func (o *Overlay) Registry() *session.Registry { return o.reg }

// Viewport returns the mirrored viewport.
func (o *Overlay) Viewport() coords.Viewport { return o.vp }

// ToImage maps a client point into image space. It reports false when the
// point is off the image.
func (o *Overlay) ToImage(p r2.Vec) (r2.Vec, bool) {
	if !o.vp.Contains(p) {
		return r2.Vec{}, false
	}
	return o.vp.ClientToImage(p), true
}

// Clamp maps a client point into image space, pulling it onto the image
// when the pointer has left it.
func (o *Overlay) Clamp(p r2.Vec) r2.Vec {
	q := o.vp.ClientToImage(p)
	q.X = math.Max(0, math.Min(q.X, o.vp.LocalWidth))
	q.Y = math.Max(0, math.Min(q.Y, o.vp.LocalHeight))
	return q
}
