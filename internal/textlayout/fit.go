package textlayout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"image-annotator/internal/annotation"
	"image-annotator/internal/sched"
	"image-annotator/internal/session"
)

// ErrStale is reported when the text box was deleted or removed while its
// content was being measured.
var ErrStale = errors.New("text box gone before measurement finished")

// DefaultPadding is the inset, in image pixels, between the frame and the
// text when fitting.
const DefaultPadding = 4.0

// Fitter resizes text boxes to their content. Measurement runs off the
// event loop; the resize is posted back and re-validated first.
type Fitter struct {
	loop    sched.Poster
	reg     *session.Registry
	m       *Measurer
	logger  *zap.Logger
	padding float64
}

// FitOption configures a Fitter.
type FitOption func(*Fitter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) FitOption {
	return func(f *Fitter) { f.logger = l }
}

// WithPadding sets the frame inset.
func WithPadding(p float64) FitOption {
	return func(f *Fitter) { f.padding = p }
}

// NewFitter creates a fitter posting its continuations to loop.
func NewFitter(loop sched.Poster, reg *session.Registry, m *Measurer, opts ...FitOption) *Fitter {
	f := &Fitter{loop: loop, reg: reg, m: m, logger: zap.NewNop(), padding: DefaultPadding}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type fitInput struct {
	content string
	size    float64
	width   float64
}

// Fit keeps the box width and sets its height to the wrapped content plus
// padding, as one undoable edit. It must be called on the loop; done runs
// on the loop once the box is resized or the fit is abandoned.
func (f *Fitter) Fit(ctx context.Context, imageID, id string, done func(error)) {
	a, ok := f.reg.Find(imageID, id)
	if !ok {
		done(fmt.Errorf("fit %s: %w", id, session.ErrAnnotationNotFound))
		return
	}
	t, ok := a.(*annotation.Text)
	if !ok {
		done(fmt.Errorf("fit %s: %s is not a text box: %w", id, a.Kind(), annotation.ErrKindMismatch))
		return
	}
	in := fitInput{content: t.Content, size: t.FontSize, width: t.Box().Width()}

	sched.Go(ctx, f.loop,
		func(ctx context.Context) (float64, error) {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			_, h := f.m.Measure(in.content, in.size, in.width-2*f.padding)
			return h, nil
		},
		func(h float64, err error) {
			if err != nil {
				done(fmt.Errorf("fit %s: %w", id, err))
				return
			}
			// The box may have been deleted, or the image removed, meanwhile.
			a, ok := f.reg.Find(imageID, id)
			if !ok {
				f.logger.Warn("text fit abandoned", zap.String("image", imageID), zap.String("annotation", id))
				done(fmt.Errorf("fit %s: %w", id, ErrStale))
				return
			}
			t := a.(*annotation.Text)
			t.ResizeTo(t.Box().Width(), h+2*f.padding)
			f.logger.Debug("text fitted", zap.String("annotation", id), zap.Float64("height", h+2*f.padding))
			done(nil)
		})
}
