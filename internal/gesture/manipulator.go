// Package gesture implements direct manipulation of existing annotations:
// translate, rotate and corner-scale handles driven by pointer contact.
//
// A contact first waits out an activation delay so that a tap selects
// instead of dragging. Once active, moves transform a detached preview copy
// and the authoritative shape is only touched on release, by one undoable
// transform.
package gesture

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
	"image-annotator/internal/coords"
	"image-annotator/internal/event"
	"image-annotator/internal/sched"
	"image-annotator/pkg/geometry"
)

// ErrBusy is returned by Press while another contact is being handled.
var ErrBusy = errors.New("manipulation already in progress")

// Defaults for the activation delay and the movement dead zone.
const (
	DefaultActivationDelay = 150 * time.Millisecond
	DefaultDeadZone        = 2.0 // client pixels

	// minScale keeps a dragged corner from collapsing or mirroring the shape.
	minScale = 0.01
)

// Handle is the kind of control a contact started on.
type Handle int

const (
	Translate Handle = iota
	Rotate
	// Scale is a corner handle. The corner index follows
	// geometry.OrientedBox order.
	Scale
)

func (h Handle) String() string {
	switch h {
	case Translate:
		return "translate"
	case Rotate:
		return "rotate"
	case Scale:
		return "scale"
	default:
		return "unknown"
	}
}

// State is the manipulator state.
type State int

const (
	Idle State = iota
	PendingActivation
	Previewing
	Committing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingActivation:
		return "pending-activation"
	case Previewing:
		return "previewing"
	case Committing:
		return "committing"
	default:
		return "unknown"
	}
}

// Manipulator runs the handle state machine for one pointer at a time.
// All methods must be called from the event loop that owns the scheduler.
type Manipulator struct {
	sched    sched.Scheduler
	bus      event.Dispatcher
	logger   *zap.Logger
	delay    time.Duration
	deadZone float64

	state  State
	gen    int
	timer  sched.Timer
	target annotation.Annotation
	handle Handle
	corner int
	vp     coords.Viewport

	startClient r2.Vec
	start       r2.Vec // image space
	last        r2.Vec // image space
	moved       bool
	m           geometry.AffineTransform
	preview     annotation.Annotation
}

// Option configures a Manipulator.
type Option func(*Manipulator)

// WithLogger sets the logger used for state transitions.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manipulator) { m.logger = l }
}

// WithActivationDelay sets how long a contact must be held before it drags.
func WithActivationDelay(d time.Duration) Option {
	return func(m *Manipulator) { m.delay = d }
}

// WithDeadZone sets the client distance a pointer must travel before a
// contact counts as movement.
func WithDeadZone(px float64) Option {
	return func(m *Manipulator) { m.deadZone = px }
}

// NewManipulator creates an idle manipulator. Selection requests and
// preview render notifications go to bus.
func NewManipulator(s sched.Scheduler, bus event.Dispatcher, opts ...Option) *Manipulator {
	m := &Manipulator{
		sched:    s,
		bus:      bus,
		logger:   zap.NewNop(),
		delay:    DefaultActivationDelay,
		deadZone: DefaultDeadZone,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Manipulator) State() State { return m.state }

// Preview returns the detached copy being dragged, or nil outside
// Previewing.
func (m *Manipulator) Preview() annotation.Annotation { return m.preview }

// Transform returns the matrix accumulated by the current drag.
func (m *Manipulator) Transform() geometry.AffineTransform { return m.m }

func (m *Manipulator) setState(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("gesture state",
		zap.Stringer("from", m.state),
		zap.Stringer("to", s),
		zap.Stringer("handle", m.handle))
	m.state = s
}

// Press starts a contact on a handle of target at client point p. vp is the
// viewport of the target's image. corner is only used by Scale.
func (m *Manipulator) Press(target annotation.Annotation, h Handle, corner int, p r2.Vec, vp coords.Viewport) error {
	if m.state != Idle {
		return ErrBusy
	}
	if target == nil || target.Deleted() {
		return fmt.Errorf("press %s handle: no live target", h)
	}
	if h == Scale && (corner < 0 || corner > 3) {
		return fmt.Errorf("press scale handle: corner %d out of range", corner)
	}

	m.gen++
	m.target, m.handle, m.corner, m.vp = target, h, corner, vp
	m.startClient = p
	m.start = vp.ClientToImage(p)
	m.last = m.start
	m.moved = false
	m.m = geometry.Identity()
	m.setState(PendingActivation)

	gen := m.gen
	m.timer = m.sched.AfterFunc(m.delay, func() { m.activate(gen) })
	return nil
}

// activate runs when the delay elapses with the contact still held.
func (m *Manipulator) activate(gen int) {
	if gen != m.gen || m.state != PendingActivation {
		return
	}
	m.timer = nil
	if m.target.Deleted() {
		m.logger.Warn("gesture target deleted before activation", zap.String("annotation", m.target.ID()))
		m.reset()
		return
	}
	m.setState(Previewing)
	m.updatePreview()
}

// Move reports the pointer at client point p. While activation is pending
// only the position is recorded; the preview catches up on activation.
func (m *Manipulator) Move(p r2.Vec) {
	if m.state != PendingActivation && m.state != Previewing {
		return
	}
	if !m.moved && geometry.Distance(p, m.startClient) > m.deadZone {
		m.moved = true
	}
	m.last = m.vp.ClientToImage(p)
	if m.state == Previewing {
		m.updatePreview()
	}
}

// Release ends the contact at client point p. A drag commits its transform
// as one undoable edit; anything else is a tap and asks for selection.
func (m *Manipulator) Release(p r2.Vec) {
	switch m.state {
	case PendingActivation:
		m.stopTimer()
		m.selectTarget()
		m.reset()
	case Previewing:
		m.Move(p)
		m.setState(Committing)
		m.commit()
		m.reset()
	}
}

// Cancel abandons the contact without mutation or selection.
func (m *Manipulator) Cancel() {
	if m.state == Idle {
		return
	}
	m.stopTimer()
	m.reset()
}

func (m *Manipulator) commit() {
	if !m.moved || m.m.IsIdentity(geometry.Epsilon) {
		m.selectTarget()
		return
	}
	if m.target.Deleted() {
		m.logger.Warn("gesture target deleted before commit", zap.String("annotation", m.target.ID()))
		return
	}
	m.logger.Debug("gesture commit",
		zap.String("annotation", m.target.ID()),
		zap.Stringer("handle", m.handle))
	m.target.ApplyTransform(m.m, true)
}

func (m *Manipulator) selectTarget() {
	m.bus.Emit(event.EventSelectRequest, event.SelectRequest{
		ImageID:      m.target.ImageID(),
		AnnotationID: m.target.ID(),
	})
}

func (m *Manipulator) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manipulator) reset() {
	hadPreview := m.preview != nil
	target := m.target
	m.preview = nil
	m.target = nil
	m.gen++
	m.setState(Idle)
	if hadPreview && target != nil {
		m.emitRender(target)
	}
}

// updatePreview recomputes the drag matrix from the start point and applies
// it to a fresh copy, so repeated moves never compound.
func (m *Manipulator) updatePreview() {
	m.m = m.dragTransform()
	preview := m.target.Clone()
	preview.ApplyTransform(m.m, false)
	m.preview = preview
	m.emitRender(m.target)
}

func (m *Manipulator) emitRender(a annotation.Annotation) {
	m.bus.Emit(event.EventChange, event.Change{
		Type:          event.ChangeRender,
		ImageID:       a.ImageID(),
		AnnotationIDs: []string{a.ID()},
	})
}

func (m *Manipulator) dragTransform() geometry.AffineTransform {
	switch m.handle {
	case Rotate:
		return RotateTransform(m.target.BBox(), m.start, m.last)
	case Scale:
		return ScaleTransform(m.target.BBox(), m.corner, r2.Sub(m.last, m.start))
	default:
		return geometry.TranslationVec(r2.Sub(m.last, m.start))
	}
}

// RotateTransform rotates about the box centre by the angle the pointer
// swept from start to cur. Both points are in image space, so the image's
// own rotation is already removed.
func RotateTransform(b geometry.OrientedBox, start, cur r2.Vec) geometry.AffineTransform {
	c := b.Center()
	from, to := r2.Sub(start, c), r2.Sub(cur, c)
	if r2.Norm(from) < geometry.Epsilon || r2.Norm(to) < geometry.Epsilon {
		return geometry.Identity()
	}
	delta := geometry.NormalizeAngle(geometry.Angle(to) - geometry.Angle(from))
	return geometry.RotationAbout(c, delta)
}

// ScaleTransform drags corner k of b by delta (image space). The opposite
// corner stays fixed and the drag is measured along the box's own axes, so
// the shape keeps its rotation. Factors are clamped positive.
func ScaleTransform(b geometry.OrientedBox, k int, delta r2.Vec) geometry.AffineTransform {
	pivot := b[(k+2)%4]
	theta := b.Angle()
	toLocal := geometry.Rotation(-theta)

	d0 := toLocal.ApplyVector(r2.Sub(b[k], pivot))
	d1 := toLocal.ApplyVector(r2.Add(r2.Sub(b[k], pivot), delta))
	sx, sy := factor(d1.X, d0.X), factor(d1.Y, d0.Y)
	return geometry.OrientedScaleAbout(pivot, theta, sx, sy)
}

func factor(now, was float64) float64 {
	if math.Abs(was) < geometry.Epsilon {
		return 1
	}
	return math.Max(now/was, minScale)
}
