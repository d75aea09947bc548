// Package worker runs the engine maintenance goroutine: a periodic tick plus
// serialized operations that must not run on the processing goroutine.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shaban/plughost/logging"
)

// Op is a maintenance operation. It should be quick; any heavy work should be
// prepared in advance. It receives a context that is canceled on Stop.
type Op interface {
	Apply(ctx context.Context) error
}

// Func is a helper to adapt functions into Op.
type Func func(ctx context.Context) error

func (f Func) Apply(ctx context.Context) error { return f(ctx) }

var (
	ErrNotRunning = errors.New("worker not running")
	ErrStopped    = errors.New("worker stopped")
)

// Worker serializes maintenance onto a single goroutine that can be stopped
// and started again.
type Worker struct {
	buffer int
	period time.Duration
	tick   func(ctx context.Context)
	logger logging.Logger

	mu     sync.Mutex
	ch     chan Op
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Worker.
type Option func(*Worker)

// WithTick runs fn every period on the worker goroutine.
func WithTick(period time.Duration, fn func(ctx context.Context)) Option {
	return func(w *Worker) {
		w.period = period
		w.tick = fn
	}
}

// WithLogger sets the logger used for failed operations.
func WithLogger(l logging.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// New creates a stopped worker with a fixed op buffer.
func New(buffer int, opts ...Option) *Worker {
	if buffer <= 0 {
		buffer = 32
	}
	w := &Worker{buffer: buffer, logger: logging.Nop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the worker goroutine. Safe to call multiple times.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	w.ch = make(chan Op, w.buffer)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.done = make(chan struct{})
	go w.loop(w.ctx, w.ch, w.done)
}

func (w *Worker) loop(ctx context.Context, ch <-chan Op, done chan<- struct{}) {
	defer close(done)
	var tickC <-chan time.Time
	if w.tick != nil && w.period > 0 {
		t := time.NewTicker(w.period)
		defer t.Stop()
		tickC = t.C
	}
	for {
		select {
		case <-ctx.Done():
			// drain outstanding ops best-effort with short deadline
			drainUntil := time.After(10 * time.Millisecond)
			for {
				select {
				case op := <-ch:
					w.run(ctx, op)
				case <-drainUntil:
					return
				default:
					return
				}
			}
		case <-tickC:
			w.tick(ctx)
		case op := <-ch:
			w.run(ctx, op)
		}
	}
}

func (w *Worker) run(ctx context.Context, op Op) {
	if op == nil {
		return
	}
	if err := op.Apply(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("worker op failed", "error", err)
	}
}

// Running reports whether the goroutine is started.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done != nil
}

// Stop cancels the worker and waits up to timeout for the goroutine to exit.
// It returns false when the goroutine was still running at the deadline; the
// worker is considered stopped either way.
func (w *Worker) Stop(timeout time.Duration) bool {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done, w.ch = nil, nil, nil
	w.mu.Unlock()
	if done == nil {
		return true
	}
	cancel()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Enqueue adds an operation to the queue.
func (w *Worker) Enqueue(op Op) error {
	w.mu.Lock()
	ch, ctx := w.ch, w.ctx
	w.mu.Unlock()
	if ch == nil {
		return ErrNotRunning
	}
	select {
	case ch <- op:
		return nil
	case <-ctx.Done():
		return ErrStopped
	}
}

// RunSync enqueues fn and waits for it to complete, returning its error. When
// the worker is not running fn runs on the caller's goroutine.
func (w *Worker) RunSync(fn Func) error {
	w.mu.Lock()
	ctx := w.ctx
	running := w.done != nil
	w.mu.Unlock()
	if !running {
		return fn(context.Background())
	}
	done := make(chan error, 1)
	if err := w.Enqueue(Func(func(ctx context.Context) error {
		err := fn(ctx)
		// Non-blocking send in case caller gave up
		select {
		case done <- err:
		default:
		}
		return err
	})); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return context.Canceled
	}
}
