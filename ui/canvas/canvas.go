// Package canvas provides the annotation canvas: an image view with zoom,
// discrete rotation and pointer routing to the annotation tools.
package canvas

import (
	"context"
	"image"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/gogpu/gg"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
	"image-annotator/internal/coords"
	"image-annotator/internal/create"
	"image-annotator/internal/event"
	"image-annotator/internal/gesture"
	imagesrc "image-annotator/internal/image"
	"image-annotator/internal/sched"
	"image-annotator/internal/session"
	"image-annotator/internal/textlayout"
	"image-annotator/pkg/colorutil"
	"image-annotator/pkg/geometry"
)

const (
	minZoom  = 0.1
	maxZoom  = 10.0
	zoomStep = 1.25

	// composeTimeout bounds how long a repaint waits for the event loop.
	composeTimeout = 250 * time.Millisecond
)

// Option configures an AnnotationCanvas.
type Option func(*AnnotationCanvas)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *AnnotationCanvas) { c.logger = l }
}

// WithActivationDelay sets the press-and-hold delay of the manipulator.
func WithActivationDelay(d time.Duration) Option {
	return func(c *AnnotationCanvas) { c.delay = d }
}

// WithFaces sets the font source used to draw text annotations.
func WithFaces(f annotation.FaceSource) Option {
	return func(c *AnnotationCanvas) { c.faces = f }
}

// WithToolSettings sets the creation defaults.
func WithToolSettings(s ToolSettings) Option {
	return func(c *AnnotationCanvas) { c.settings = s }
}

// AnnotationCanvas displays one image and its annotations. Every registry
// access happens on the event loop; fyne callbacks post to it.
type AnnotationCanvas struct {
	widget.BaseWidget

	loop     *sched.Loop
	reg      *session.Registry
	src      *imagesrc.Source
	router   *Router
	fitter   *textlayout.Fitter
	faces    annotation.FaceSource
	settings ToolSettings
	logger   *zap.Logger
	delay    time.Duration

	raster  *fynecanvas.Raster
	content *pointerContent
	scroll  *zoomScroll

	// Display cache, touched only on the loop.
	display   image.Image
	dispRot   coords.Rotation
	dispScale float64

	mu      sync.Mutex
	zoom    float64
	tool    Tool
	last    image.Image
	pressed bool

	offChange    func()
	onZoomChange func(zoom float64)
	onToolChange func(tool Tool)
}

// NewAnnotationCanvas creates a canvas for src, which must already be
// registered with reg.
func NewAnnotationCanvas(loop *sched.Loop, reg *session.Registry, src *imagesrc.Source, opts ...Option) *AnnotationCanvas {
	c := &AnnotationCanvas{
		loop:   loop,
		reg:    reg,
		src:    src,
		logger: zap.NewNop(),
		delay:  gesture.DefaultActivationDelay,
		zoom:   1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.settings.Style.Color == "" {
		c.settings.Style = annotation.DefaultStyle()
	}

	manip := gesture.NewManipulator(loop, reg.Bus(),
		gesture.WithActivationDelay(c.delay),
		gesture.WithLogger(c.logger))
	c.router = NewRouter(reg, src.ID, manip, c.logger)
	if m, ok := c.faces.(*textlayout.Measurer); ok {
		c.fitter = textlayout.NewFitter(loop, reg, m, textlayout.WithLogger(c.logger))
	}

	c.raster = fynecanvas.NewRaster(c.draw)
	c.raster.ScaleMode = fynecanvas.ImageScalePixels
	c.content = newPointerContent(c, c.raster)
	c.scroll = newZoomScroll(c.content, c)

	loop.Post(func() {
		if img, ok := reg.Image(src.ID); ok {
			c.mu.Lock()
			c.zoom = img.Scale
			c.mu.Unlock()
		}
		c.relayout()
		c.offChange = reg.Bus().On(event.EventChange, func(data interface{}) {
			if ch, ok := data.(event.Change); ok && ch.ImageID == src.ID {
				c.raster.Refresh()
			}
		})
	})

	c.ExtendBaseWidget(c)
	return c
}

// ImageID returns the id of the displayed image.
func (c *AnnotationCanvas) ImageID() string { return c.src.ID }

// Container returns the canvas container for embedding in layouts.
func (c *AnnotationCanvas) Container() fyne.CanvasObject { return c.scroll }

// relayout places the image at the content origin and tells overlays.
func (c *AnnotationCanvas) relayout() {
	vp, err := c.reg.Layout(c.src.ID, r2.Vec{})
	if err != nil {
		c.logger.Warn("layout failed", zap.String("image", c.src.ID), zap.Error(err))
		return
	}
	size := vp.Rect.Size()
	c.content.setSize(fyne.NewSize(float32(size.X), float32(size.Y)))
	c.reg.Bus().Emit(event.EventChange, event.Change{Type: event.ChangeRender, ImageID: c.src.ID})
}

// SetZoom sets the zoom level.
func (c *AnnotationCanvas) SetZoom(zoom float64) {
	zoom = min(max(zoom, minZoom), maxZoom)
	c.mu.Lock()
	c.zoom = zoom
	cb := c.onZoomChange
	c.mu.Unlock()

	c.loop.Post(func() {
		if err := c.reg.SetScale(c.src.ID, zoom); err != nil {
			c.logger.Warn("zoom failed", zap.Error(err))
			return
		}
		c.relayout()
	})
	if cb != nil {
		cb(zoom)
	}
}

// Zoom returns the current zoom level.
func (c *AnnotationCanvas) Zoom() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

// ZoomIn increases the zoom level.
func (c *AnnotationCanvas) ZoomIn() { c.SetZoom(c.Zoom() * zoomStep) }

// ZoomOut decreases the zoom level.
func (c *AnnotationCanvas) ZoomOut() { c.SetZoom(c.Zoom() / zoomStep) }

// FitToWindow adjusts zoom to fit the rotated image in the visible area.
func (c *AnnotationCanvas) FitToWindow() {
	view := c.scroll.Size()
	w, h := float64(c.src.Width()), float64(c.src.Height())
	if view.Width <= 0 || view.Height <= 0 || w == 0 || h == 0 {
		return
	}
	done := make(chan coords.Rotation, 1)
	c.loop.Post(func() {
		img, ok := c.reg.Image(c.src.ID)
		if !ok {
			done <- coords.Rotate0
			return
		}
		done <- img.Rotation
	})
	if (<-done).SwapsAxes() {
		w, h = h, w
	}
	c.SetZoom(min(float64(view.Width)/w, float64(view.Height)/h) * 0.95)
}

// Rotate turns the image by a quarter turn clockwise, or counter-clockwise
// when ccw is set.
func (c *AnnotationCanvas) Rotate(ccw bool) {
	delta := 90
	if ccw {
		delta = -90
	}
	c.loop.Post(func() {
		img, ok := c.reg.Image(c.src.ID)
		if !ok {
			return
		}
		if err := c.reg.SetRotation(c.src.ID, img.Rotation.Add(delta)); err != nil {
			c.logger.Warn("rotate failed", zap.Error(err))
			return
		}
		c.relayout()
	})
}

// SetTool switches the interaction tool. Pending creations of the previous
// tool are discarded.
func (c *AnnotationCanvas) SetTool(t Tool) {
	c.mu.Lock()
	c.tool = t
	cb := c.onToolChange
	c.mu.Unlock()

	c.loop.Post(func() {
		ctrl, err := NewController(c.reg, c.src.ID, t, c.settings, c.logger)
		if err != nil {
			c.logger.Warn("tool unavailable", zap.Stringer("tool", t), zap.Error(err))
			c.router.SetController(nil)
			return
		}
		c.router.SetController(ctrl)
		if ctrl != nil {
			ctrl.OnChange(func(create.Change) { c.raster.Refresh() })
		}
		c.raster.Refresh()
	})
	if cb != nil {
		cb(t)
	}
}

// Tool returns the current interaction tool.
func (c *AnnotationCanvas) Tool() Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tool
}

// Save appends the active tool's pending annotations to the registry.
func (c *AnnotationCanvas) Save() {
	c.loop.Post(func() {
		ctrl := c.router.Controller()
		if ctrl == nil {
			return
		}
		saved, err := ctrl.Save()
		if err != nil {
			c.logger.Warn("save failed", zap.Error(err))
		}
		for _, a := range saved {
			if t, ok := a.(*annotation.Text); ok && c.fitter != nil && t.Content != "" {
				c.fitter.Fit(context.Background(), c.src.ID, t.ID(), func(err error) {
					if err != nil {
						c.logger.Debug("text fit skipped", zap.Error(err))
					}
				})
			}
		}
	})
}

// UndoLast drops the active tool's most recent pending element, or pops the
// registry undo stack when no tool is active.
func (c *AnnotationCanvas) UndoLast() {
	c.loop.Post(func() {
		if ctrl := c.router.Controller(); ctrl != nil && ctrl.State().CanUndo {
			ctrl.UndoLast()
			return
		}
		c.reg.Undo()
	})
}

// DeleteSelected removes the selected annotation.
func (c *AnnotationCanvas) DeleteSelected() {
	c.loop.Post(func() {
		sel, ok := c.reg.Selected()
		if !ok || sel.ImageID() != c.src.ID {
			return
		}
		if err := c.reg.Delete(c.src.ID, sel.ID()); err != nil {
			c.logger.Warn("delete failed", zap.Error(err))
		}
	})
}

// OnZoomChange sets a callback for zoom changes.
func (c *AnnotationCanvas) OnZoomChange(callback func(zoom float64)) {
	c.mu.Lock()
	c.onZoomChange = callback
	c.mu.Unlock()
}

// OnToolChange sets a callback for tool changes.
func (c *AnnotationCanvas) OnToolChange(callback func(tool Tool)) {
	c.mu.Lock()
	c.onToolChange = callback
	c.mu.Unlock()
}

// Close detaches the canvas from the registry.
func (c *AnnotationCanvas) Close() {
	c.loop.Post(func() {
		c.router.Close()
		if c.offChange != nil {
			c.offChange()
			c.offChange = nil
		}
	})
}

func (c *AnnotationCanvas) press(p fyne.Position) {
	c.mu.Lock()
	c.pressed = true
	c.mu.Unlock()
	c.loop.Post(func() { c.router.Press(toVec(p)) })
}

func (c *AnnotationCanvas) move(p fyne.Position) {
	c.loop.Post(func() {
		c.router.Move(toVec(p))
		// Controllers notify only on mutations; rubber bands need a repaint.
		if c.router.Controller() != nil {
			c.raster.Refresh()
		}
	})
}

func (c *AnnotationCanvas) release(p fyne.Position) {
	c.mu.Lock()
	was := c.pressed
	c.pressed = false
	c.mu.Unlock()
	if was {
		c.loop.Post(func() { c.router.Release(toVec(p)) })
	}
}

func toVec(p fyne.Position) r2.Vec { return r2.Vec{X: float64(p.X), Y: float64(p.Y)} }

// draw is the raster drawing function. Composition runs on the loop; a
// busy loop gets the previous frame.
func (c *AnnotationCanvas) draw(w, h int) image.Image {
	out := make(chan image.Image, 1)
	c.loop.Post(func() { out <- c.compose() })
	select {
	case img := <-out:
		c.mu.Lock()
		c.last = img
		c.mu.Unlock()
		return img
	case <-time.After(composeTimeout):
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.last == nil {
			return image.NewRGBA(image.Rect(0, 0, w, h))
		}
		return c.last
	}
}

// displayImage returns the rotated and scaled source, rebuilt when the view
// changed.
func (c *AnnotationCanvas) displayImage(rot coords.Rotation, scale float64) image.Image {
	if c.display == nil || c.dispRot != rot || c.dispScale != scale {
		c.display = imagesrc.Display(c.src.Image, rot, scale)
		c.dispRot, c.dispScale = rot, scale
	}
	return c.display
}

// compose renders the image, its committed annotations, the draft or
// preview and the selection handles in client space.
func (c *AnnotationCanvas) compose() image.Image {
	img, ok := c.reg.Image(c.src.ID)
	if !ok {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	vp := img.Viewport()

	dc := gg.NewContextForImage(c.displayImage(img.Rotation, img.Scale))
	defer dc.Close()

	dc.Push()
	dc.Transform(ClientTransform(vp).ToGG())
	hidden := c.router.Hidden()
	for _, r := range c.reg.RenderAll(c.src.ID) {
		if r.Annotation.ID() == hidden {
			continue
		}
		if err := r.Appearance.Draw(dc, c.faces); err != nil {
			c.logger.Warn("draw failed", zap.String("annotation", r.Annotation.ID()), zap.Error(err))
		}
	}
	for _, d := range c.router.Draft() {
		app, err := d.Render(c.reg.RenderOptions())
		if err != nil {
			continue
		}
		_ = app.Draw(dc, c.faces)
	}
	dc.Pop()

	if sel, ok := c.reg.Selected(); ok && sel.ImageID() == c.src.ID && hidden == "" {
		c.drawSelection(dc, ClientBox(sel.BBox(), vp))
	}
	if err := dc.FlushGPU(); err != nil {
		c.logger.Warn("flush failed", zap.Error(err))
	}
	return dc.Image()
}

// drawSelection outlines b with its corner and rotate handles.
func (c *AnnotationCanvas) drawSelection(dc *gg.Context, b geometry.OrientedBox) {
	dc.SetColor(colorutil.Selection)
	dc.SetLineWidth(1)
	dc.SetDash(4, 3)
	dc.MoveTo(b[0].X, b[0].Y)
	for _, p := range b[1:] {
		dc.LineTo(p.X, p.Y)
	}
	dc.ClosePath()
	_ = dc.Stroke()
	dc.ClearDash()

	top := geometry.Lerp(b[0], b[1], 0.5)
	rh := rotateHandle(b)
	dc.MoveTo(top.X, top.Y)
	dc.LineTo(rh.X, rh.Y)
	_ = dc.Stroke()

	for _, p := range append(b.Points(), rh) {
		dc.DrawCircle(p.X, p.Y, handleRadius-2)
		dc.SetColor(colorutil.Handle)
		_ = dc.FillPreserve()
		dc.SetColor(colorutil.Selection)
		_ = dc.Stroke()
	}
}

// CreateRenderer implements fyne.Widget.
func (c *AnnotationCanvas) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(c.scroll)
}

// zoomScroll is a widget that wraps a scroll container but intercepts wheel for zoom.
type zoomScroll struct {
	widget.BaseWidget
	scroll *container.Scroll
	canvas *AnnotationCanvas
}

func newZoomScroll(content fyne.CanvasObject, c *AnnotationCanvas) *zoomScroll {
	scroll := container.NewScroll(content)
	scroll.Direction = container.ScrollBoth
	zs := &zoomScroll{scroll: scroll, canvas: c}
	zs.ExtendBaseWidget(zs)
	return zs
}

func (zs *zoomScroll) Scrolled(ev *fyne.ScrollEvent) {
	// Use wheel for zoom, not scroll
	if ev.Scrolled.DY > 0 {
		zs.canvas.ZoomIn()
	} else if ev.Scrolled.DY < 0 {
		zs.canvas.ZoomOut()
	}
}

func (zs *zoomScroll) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(zs.scroll)
}

// Size returns the scroll container's size.
func (zs *zoomScroll) Size() fyne.Size {
	return zs.scroll.Size()
}

// Resize sets the size of the scroll container.
func (zs *zoomScroll) Resize(size fyne.Size) {
	zs.scroll.Resize(size)
	zs.BaseWidget.Resize(size)
}

// pointerContent wraps the raster to receive mouse events. Positions are
// relative to the image origin, which is the client origin of the layout.
type pointerContent struct {
	widget.BaseWidget
	canvas *AnnotationCanvas
	raster *fynecanvas.Raster
}

var (
	_ desktop.Mouseable = (*pointerContent)(nil)
	_ desktop.Hoverable = (*pointerContent)(nil)
	_ fyne.Draggable    = (*pointerContent)(nil)
)

func newPointerContent(c *AnnotationCanvas, raster *fynecanvas.Raster) *pointerContent {
	pc := &pointerContent{canvas: c, raster: raster}
	pc.ExtendBaseWidget(pc)
	return pc
}

func (pc *pointerContent) setSize(s fyne.Size) {
	pc.raster.SetMinSize(s)
	pc.raster.Resize(s)
	pc.Resize(s)
	pc.Refresh()
}

func (pc *pointerContent) MouseDown(ev *desktop.MouseEvent) {
	if ev.Button == desktop.MouseButtonPrimary {
		pc.canvas.press(ev.Position)
	}
}

func (pc *pointerContent) MouseUp(ev *desktop.MouseEvent) {
	if ev.Button == desktop.MouseButtonPrimary {
		pc.canvas.release(ev.Position)
	}
}

func (pc *pointerContent) Dragged(ev *fyne.DragEvent) { pc.canvas.move(ev.Position) }

// DragEnd does nothing; MouseUp carries the release position.
func (pc *pointerContent) DragEnd() {}

func (pc *pointerContent) MouseIn(*desktop.MouseEvent) {}

func (pc *pointerContent) MouseMoved(ev *desktop.MouseEvent) { pc.canvas.move(ev.Position) }

func (pc *pointerContent) MouseOut() {}

func (pc *pointerContent) MinSize() fyne.Size { return pc.raster.MinSize() }

func (pc *pointerContent) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(pc.raster)
}
