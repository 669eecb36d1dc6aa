// Package screen turns navigation transitions into screen-view events.
package screen

import (
	"context"
	"sync"
	"time"

	"github.com/leshachaplin/appsight/sdk/event"
	"github.com/leshachaplin/appsight/sdk/ingest"
)

type Recorder interface {
	AddScreenView(event.ScreenView)
}

type Action string

const (
	Push    Action = "push"
	Pop     Action = "pop"
	Replace Action = "replace"
)

// Transition is one navigation change. Name is the screen that is current
// afterwards; an empty Name means the host could not resolve one.
type Transition struct {
	Action   Action
	Name     string
	Previous string
	At       time.Time
}

type Observer struct {
	mu        sync.Mutex
	current   string
	enteredAt time.Time

	recorder func() Recorder
	now      func() time.Time
}

type Option func(*Observer)

// WithRecorder pins the observer to r instead of the process-wide client.
func WithRecorder(r Recorder) Option {
	return func(o *Observer) {
		o.recorder = func() Recorder { return r }
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Observer) { o.now = now }
}

func NewObserver(opts ...Option) *Observer {
	o := &Observer{
		recorder: currentClient,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func currentClient() Recorder {
	c := ingest.Current()
	if c == nil {
		return nil
	}
	return c
}

func (o *Observer) DidPush(name, previous string) {
	o.Navigate(Transition{Action: Push, Name: name, Previous: previous, At: o.now()})
}

// DidPop is called with the screen revealed by the pop.
func (o *Observer) DidPop(revealed, popped string) {
	o.Navigate(Transition{Action: Pop, Name: revealed, Previous: popped, At: o.now()})
}

func (o *Observer) DidReplace(name, replaced string) {
	o.Navigate(Transition{Action: Replace, Name: name, Previous: replaced, At: o.now()})
}

// Current returns the screen the observer believes is active.
func (o *Observer) Current() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *Observer) Navigate(t Transition) {
	if t.Name == "" {
		return
	}
	if t.At.IsZero() {
		t.At = o.now()
	}

	o.mu.Lock()
	previous := o.current
	if previous == "" {
		previous = t.Previous
	}
	var (
		duration    time.Duration
		hasDuration bool
	)
	if !o.enteredAt.IsZero() {
		duration = t.At.Sub(o.enteredAt)
		hasDuration = true
	}
	o.current = t.Name
	o.enteredAt = t.At
	o.mu.Unlock()

	r := o.recorder()
	if r == nil {
		return
	}

	opts := make([]event.ScreenOption, 0, 2)
	if previous != "" {
		opts = append(opts, event.WithPreviousScreen(previous))
	}
	if hasDuration {
		opts = append(opts, event.WithDuration(duration))
	}
	view, err := event.NewScreenView(t.At, t.Name, opts...)
	if err != nil {
		return
	}
	r.AddScreenView(view)
}

// Run feeds transitions from the host's navigation stream until ctx is
// done or the stream closes.
func (o *Observer) Run(ctx context.Context, transitions <-chan Transition) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-transitions:
			if !ok {
				return
			}
			o.Navigate(t)
		}
	}
}
