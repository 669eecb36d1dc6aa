// Package errhandler turns Go errors and panics into ingestion error events.
package errhandler

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/leshachaplin/appsight/sdk/event"
	"github.com/leshachaplin/appsight/sdk/internal/errstack"
)

type Recorder interface {
	AddError(event.Error)
}

type causer interface {
	Cause() error
}

type Handler struct {
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
	defaults map[string]any
}

type Option func(*Handler)

func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithContext adds keys to every recorded error's context, e.g. app version.
func WithContext(ctx map[string]any) Option {
	return func(h *Handler) { h.defaults = ctx }
}

func New(recorder Recorder, opts ...Option) *Handler {
	h := &Handler{
		recorder: recorder,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Capture records err. Nil errors are ignored.
func (h *Handler) Capture(err error, ctx map[string]any) {
	if err == nil {
		return
	}
	h.record(err.Error(), errorType(err), stackOf(err), ctx)
}

func (h *Handler) CaptureMessage(msg string, ctx map[string]any) {
	h.record(msg, "", "", ctx)
}

// Recover records a panic in progress and panics again with the same
// value. Use it as `defer h.Recover()`.
func (h *Handler) Recover() {
	r := recover()
	if r == nil {
		return
	}
	h.capturePanic(r)
	panic(r)
}

// Go runs fn on a new goroutine, recording any panic before re-raising it.
func (h *Handler) Go(fn func()) {
	go func() {
		defer h.Recover()
		fn()
	}()
}

func (h *Handler) capturePanic(r any) {
	ctx := map[string]any{"panic": true}
	if err, ok := r.(error); ok {
		h.record(err.Error(), errorType(err), string(debug.Stack()), ctx)
		return
	}
	h.record(fmt.Sprint(r), fmt.Sprintf("%T", r), string(debug.Stack()), ctx)
}

func (h *Handler) record(msg, typ, stack string, ctx map[string]any) {
	merged := make(map[string]any, len(h.defaults)+len(ctx))
	for k, v := range h.defaults {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}

	e, err := event.NewError(h.now(), msg,
		event.WithErrorType(typ),
		event.WithStackTrace(stack),
		event.WithErrorContext(merged),
	)
	if err != nil {
		h.logger.Warn().Err(err).Msg("dropping error event")
		return
	}
	h.logger.Debug().Str("type", typ).Msg(msg)
	h.recorder.AddError(e)
}

// rootCause follows both pkg/errors causes and %w wrapping.
func rootCause(err error) error {
	for {
		switch e := err.(type) {
		case causer:
			if c := e.Cause(); c != nil {
				err = c
				continue
			}
		default:
			if u := errors.Unwrap(err); u != nil {
				err = u
				continue
			}
		}
		return err
	}
}

func errorType(err error) string {
	return fmt.Sprintf("%T", rootCause(err))
}

// stackOf prefers the deepest stack recorded by pkg/errors and falls back
// to the capturing goroutine's stack.
func stackOf(err error) string {
	if stack := errstack.Of(err); stack != "" {
		return stack
	}
	return string(debug.Stack())
}
