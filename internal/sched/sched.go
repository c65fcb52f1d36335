// Package sched provides the single-threaded event loop, timers and
// suspending work used by the engine.
//
// Every mutation of annotation state runs on one Loop. Blocking work (image
// decode, text measurement) runs on its own goroutine through Go and posts
// its continuation back onto the loop.
package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// callback was still pending.
	Stop() bool
}

// Scheduler is the clock used by gestures and controllers.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Poster queues work onto the event loop.
type Poster interface {
	Post(f func())
}

// Loop is a cooperative single-threaded event queue.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	logger  *zap.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for recovered task panics.
func WithLogger(l *zap.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// NewLoop creates an idle loop. Call Run to start processing.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues f to run on the loop. It never blocks.
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	l.pending = append(l.pending, f)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes queued work until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			l.drain()
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, f := range batch {
			l.runTask(f)
		}
	}
}

func (l *Loop) runTask(f func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", zap.Any("panic", r))
		}
	}()
	f()
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time { return time.Now() }

// AfterFunc runs f on the loop after d. A stopped timer never runs f, even
// when it already fired and its callback is waiting in the queue.
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.stopped.CompareAndSwap(false, true) {
				f()
			}
		})
	})
	return lt
}

type loopTimer struct {
	t       *time.Timer
	stopped atomic.Bool
}

func (t *loopTimer) Stop() bool {
	t.t.Stop()
	return t.stopped.CompareAndSwap(false, true)
}

// Go runs work on a new goroutine and posts resume, with its result, back
// onto p. The continuation must re-validate its targets: other events may
// have run in between.
func Go[T any](ctx context.Context, p Poster, work func(context.Context) (T, error), resume func(T, error)) {
	go func() {
		v, err := work(ctx)
		p.Post(func() { resume(v, err) })
	}()
}
