// Package session provides the image registry: the explicitly constructed
// context that owns the images, their annotations, the event bus and the
// undo stack shared by every controller.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
	"image-annotator/internal/coords"
	"image-annotator/internal/event"
	"image-annotator/internal/history"
)

var (
	// ErrDuplicateID is returned when an id is already present on the target image.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrImageNotFound is returned for unknown image ids.
	ErrImageNotFound = errors.New("image not found")
	// ErrAnnotationNotFound is returned for unknown or deleted annotations.
	ErrAnnotationNotFound = errors.New("annotation not found")
)

// Image is one loaded image and its annotations.
type Image struct {
	ID     string
	Width  int
	Height int
	// Scale maps image pixels to client units. Always positive.
	Scale    float64
	Rotation coords.Rotation
	// Rect is where the image is currently rendered on screen. A zero
	// rect means it is not shown.
	Rect r2.Box

	// annotations keeps insertion order, including tombstones.
	annotations []annotation.Annotation
}

// Viewport returns the client placement of the image.
func (img *Image) Viewport() coords.Viewport {
	return coords.Viewport{
		Rect:        img.Rect,
		Rotation:    img.Rotation,
		Scale:       img.Scale,
		LocalWidth:  float64(img.Width),
		LocalHeight: float64(img.Height),
	}
}

// Annotations returns the live annotations in insertion order.
func (img *Image) Annotations() []annotation.Annotation {
	out := make([]annotation.Annotation, 0, len(img.annotations))
	for _, a := range img.annotations {
		if !a.Deleted() {
			out = append(out, a)
		}
	}
	return out
}

// All returns every annotation including tombstones.
func (img *Image) All() []annotation.Annotation {
	return append([]annotation.Annotation(nil), img.annotations...)
}

func (img *Image) index(id string) int {
	for i, a := range img.annotations {
		if a.ID() == id {
			return i
		}
	}
	return -1
}

// ImagePoint is a pointer position resolved into an image.
type ImagePoint struct {
	ImageID string
	X, Y    float64
}

// Vec returns the point as a vector.
func (p ImagePoint) Vec() r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

type ref struct {
	imageID      string
	annotationID string
}

// Registry holds the images, the bus and the undo stack.
type Registry struct {
	mu sync.RWMutex

	images   []*Image
	modified bool

	selected ref
	focused  ref

	bus     *event.Bus
	history *history.Stack
	logger  *zap.Logger

	author       string
	historyLimit int
	renderOpts   annotation.RenderOptions
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithAuthor sets the author stamped on appended annotations that have none.
func WithAuthor(author string) Option {
	return func(r *Registry) { r.author = author }
}

// WithHistoryLimit bounds the undo stack. Zero keeps every command.
func WithHistoryLimit(n int) Option {
	return func(r *Registry) { r.historyLimit = n }
}

// WithRenderOptions sets the options passed to every annotation render.
func WithRenderOptions(o annotation.RenderOptions) Option {
	return func(r *Registry) { r.renderOpts = o }
}

// NewRegistry creates an empty registry with its own bus and undo stack.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		bus:    event.NewBus(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.history = history.New(r.historyLimit)

	r.bus.On(event.EventEditRequest, func(data interface{}) {
		if req, ok := data.(event.EditRequest); ok {
			r.onEditRequest(req)
		}
	})
	r.bus.On(event.EventSelectRequest, func(data interface{}) {
		if req, ok := data.(event.SelectRequest); ok {
			r.Select(req.ImageID, req.AnnotationID)
		}
	})
	r.bus.On(event.EventFocusRequest, func(data interface{}) {
		if req, ok := data.(event.FocusRequest); ok {
			r.Focus(req.ImageID, req.AnnotationID)
		}
	})
	return r
}

// Bus returns the event bus annotations and controllers dispatch through.
func (r *Registry) Bus() *event.Bus { return r.bus }

// Logger returns the registry logger.
func (r *Registry) Logger() *zap.Logger { return r.logger }

// Author returns the author stamped on new annotations.
func (r *Registry) Author() string { return r.author }

// RenderOptions returns the options used for annotation rendering.
func (r *Registry) RenderOptions() annotation.RenderOptions { return r.renderOpts }

func (r *Registry) emitChange(t event.ChangeType, imageID string, ids ...string) {
	r.bus.Emit(event.EventChange, event.Change{Type: t, ImageID: imageID, AnnotationIDs: ids})
}

func (r *Registry) push(label string, undo func()) {
	r.history.Push(history.Command{Timestamp: time.Now(), Label: label, Undo: undo})
}

// SetModified sets the unsaved-changes flag.
func (r *Registry) SetModified(modified bool) {
	r.mu.Lock()
	r.modified = modified
	r.mu.Unlock()
}

// Modified reports whether anything changed since the last SetModified(false).
func (r *Registry) Modified() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modified
}

// AddImage registers a width×height image at scale 1 and rotation 0.
func (r *Registry) AddImage(id string, width, height int) (*Image, error) {
	r.mu.Lock()
	for _, img := range r.images {
		if img.ID == id {
			r.mu.Unlock()
			return nil, fmt.Errorf("image %s: %w", id, ErrDuplicateID)
		}
	}
	img := &Image{ID: id, Width: width, Height: height, Scale: 1, Rotation: coords.Rotate0}
	r.images = append(r.images, img)
	r.mu.Unlock()

	r.logger.Info("image added", zap.String("image", id), zap.Int("width", width), zap.Int("height", height))
	return img, nil
}

// Image returns the image with the given id.
func (r *Registry) Image(id string) (*Image, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	img := r.image(id)
	return img, img != nil
}

func (r *Registry) image(id string) *Image {
	for _, img := range r.images {
		if img.ID == id {
			return img
		}
	}
	return nil
}

// Images returns the images in load order.
func (r *Registry) Images() []*Image {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Image(nil), r.images...)
}

// RemoveImage drops an image and its annotations. Pending undo commands for
// it become no-ops.
func (r *Registry) RemoveImage(id string) error {
	r.mu.Lock()
	idx := -1
	for i, img := range r.images {
		if img.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("image %s: %w", id, ErrImageNotFound)
	}
	img := r.images[idx]
	r.images = append(r.images[:idx], r.images[idx+1:]...)
	if r.selected.imageID == id {
		r.selected = ref{}
	}
	if r.focused.imageID == id {
		r.focused = ref{}
	}
	r.mu.Unlock()

	for _, a := range img.annotations {
		a.Attach(nil)
	}
	r.logger.Info("image removed", zap.String("image", id))
	return nil
}

// Clear removes every image and empties the undo stack.
func (r *Registry) Clear() {
	r.mu.Lock()
	images := r.images
	r.images = nil
	r.selected, r.focused = ref{}, ref{}
	r.modified = false
	r.mu.Unlock()

	for _, img := range images {
		for _, a := range img.annotations {
			a.Attach(nil)
		}
	}
	r.history.Clear()
	r.logger.Info("images cleared", zap.Int("count", len(images)))
}

// SetRotation sets an image's discrete rotation. Values other than 0, 90,
// 180 and 270 panic.
func (r *Registry) SetRotation(id string, rot coords.Rotation) error {
	rot.MustValid()
	r.mu.Lock()
	img := r.image(id)
	if img == nil {
		r.mu.Unlock()
		return fmt.Errorf("image %s: %w", id, ErrImageNotFound)
	}
	img.Rotation = rot
	r.mu.Unlock()
	r.emitChange(event.ChangeRender, id)
	return nil
}

// SetScale sets an image's zoom factor.
func (r *Registry) SetScale(id string, scale float64) error {
	if !(scale > 0) {
		return fmt.Errorf("image %s: invalid scale %v", id, scale)
	}
	r.mu.Lock()
	img := r.image(id)
	if img == nil {
		r.mu.Unlock()
		return fmt.Errorf("image %s: %w", id, ErrImageNotFound)
	}
	img.Scale = scale
	r.mu.Unlock()
	r.emitChange(event.ChangeRender, id)
	return nil
}

// SetViewport records where an image is rendered on screen.
func (r *Registry) SetViewport(id string, rect r2.Box) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img := r.image(id)
	if img == nil {
		return fmt.Errorf("image %s: %w", id, ErrImageNotFound)
	}
	img.Rect = rect
	return nil
}

// Layout places an image with its rotated top-left corner at origin using
// its current rotation and scale, and returns the resulting viewport.
func (r *Registry) Layout(id string, origin r2.Vec) (coords.Viewport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img := r.image(id)
	if img == nil {
		return coords.Viewport{}, fmt.Errorf("image %s: %w", id, ErrImageNotFound)
	}
	vp := coords.Layout(origin, float64(img.Width), float64(img.Height), img.Rotation, img.Scale)
	img.Rect = vp.Rect
	return vp, nil
}

// Viewport returns the current client placement of an image.
func (r *Registry) Viewport(id string) (coords.Viewport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	img := r.image(id)
	if img == nil {
		return coords.Viewport{}, false
	}
	return img.Viewport(), true
}

// PointToImage resolves a client point into the image rendered under it.
// Later images are on top. It returns false outside every image.
func (r *Registry) PointToImage(p r2.Vec) (ImagePoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.images) - 1; i >= 0; i-- {
		img := r.images[i]
		if img.Rect == (r2.Box{}) {
			continue
		}
		vp := img.Viewport()
		if !vp.Contains(p) {
			continue
		}
		q := vp.ClientToImage(p)
		return ImagePoint{ImageID: img.ID, X: q.X, Y: q.Y}, true
	}
	return ImagePoint{}, false
}
