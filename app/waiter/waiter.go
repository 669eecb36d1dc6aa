// Package waiter runs the collector's long-lived components and stops them
// together when one fails, the parent context ends or a signal arrives.
package waiter

import (
	"context"
	"os/signal"
	"sync"

	"golang.org/x/sync/errgroup"
)

type WaitFunc func(ctx context.Context) error

type Waiter interface {
	Add(fns ...WaitFunc)
	Wait() error
	Context() context.Context
	CancelFunc() context.CancelFunc
}

type waiter struct {
	ctx      context.Context
	cancelFn context.CancelFunc

	mu  sync.Mutex
	fns []WaitFunc
}

func NewWaiter(ctx context.Context, cancelFn context.CancelFunc, opts ...Option) Waiter {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &waiter{ctx: ctx, cancelFn: cancelFn}
	if len(cfg.signals) > 0 {
		sigCtx, stop := signal.NotifyContext(ctx, cfg.signals...)
		w.ctx = sigCtx
		w.cancelFn = func() {
			stop()
			cancelFn()
		}
	}
	return w
}

func (w *waiter) Add(fns ...WaitFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fns = append(w.fns, fns...)
}

// Wait runs every added function and returns the first error. All
// functions observe the same context and must return once it is done.
func (w *waiter) Wait() error {
	defer w.cancelFn()

	w.mu.Lock()
	fns := append([]WaitFunc(nil), w.fns...)
	w.mu.Unlock()

	group, gCtx := errgroup.WithContext(w.ctx)
	for _, fn := range fns {
		fn := fn
		group.Go(func() error {
			return fn(gCtx)
		})
	}
	return group.Wait()
}

func (w *waiter) Context() context.Context {
	return w.ctx
}

func (w *waiter) CancelFunc() context.CancelFunc {
	return w.cancelFn
}
