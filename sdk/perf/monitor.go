// Package perf derives frame-rate, jank and lifecycle metrics from the
// host's frame ticks and lifecycle notifications.
package perf

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leshachaplin/appsight/sdk/event"
)

const (
	windowSize            = 100
	jankThresholdMs       = 16.0
	severeThresholdMs     = 100.0
	defaultReportInterval = 30 * time.Second
	defaultNamespace      = "flutter"
)

type Recorder interface {
	AddPerformance(event.Performance)
}

type LifecycleState string

const (
	Resumed  LifecycleState = "resumed"
	Inactive LifecycleState = "inactive"
	Paused   LifecycleState = "paused"
	Detached LifecycleState = "detached"
	Hidden   LifecycleState = "hidden"
)

func (s LifecycleState) Valid() bool {
	switch s {
	case Resumed, Inactive, Paused, Detached, Hidden:
		return true
	}
	return false
}

type LifecycleEvent struct {
	State LifecycleState
	At    time.Time
}

type Monitor struct {
	recorder       Recorder
	namespace      string
	reportInterval time.Duration
	now            func() time.Time
	logger         zerolog.Logger

	mu        sync.Mutex
	window    []float64
	jank      int
	severe    int
	total     int
	lastFrame time.Time
	pausedAt  time.Time
}

type Option func(*Monitor)

// WithNamespace sets the metric name prefix.
func WithNamespace(ns string) Option {
	return func(m *Monitor) { m.namespace = ns }
}

func WithReportInterval(d time.Duration) Option {
	return func(m *Monitor) { m.reportInterval = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

func New(recorder Recorder, opts ...Option) *Monitor {
	m := &Monitor{
		recorder:       recorder,
		namespace:      defaultNamespace,
		reportInterval: defaultReportInterval,
		now:            time.Now,
		logger:         zerolog.Nop(),
		window:         make([]float64, 0, windowSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) metric(name string) string {
	return m.namespace + "." + name
}

// OnFrame handles one frame tick. The first tick only sets the baseline.
func (m *Monitor) OnFrame(at time.Time) {
	m.mu.Lock()
	if m.lastFrame.IsZero() {
		m.lastFrame = at
		m.mu.Unlock()
		return
	}
	delta := float64(at.Sub(m.lastFrame)) / float64(time.Millisecond)
	m.lastFrame = at

	m.window = append(m.window, delta)
	if over := len(m.window) - windowSize; over > 0 {
		m.window = append(m.window[:0], m.window[over:]...)
	}
	m.total++

	severe := false
	switch {
	case delta > severeThresholdMs:
		m.severe++
		severe = true
	case delta > jankThresholdMs:
		m.jank++
	}
	m.mu.Unlock()

	if severe {
		m.emit(at, "jank", delta, "ms", map[string]any{
			"severity":              "severe",
			"threshold_exceeded_by": delta - severeThresholdMs,
		})
	}
}

// Report emits fps, p95 frame time and jank rate for the frames seen since
// the previous report, then starts a new window.
func (m *Monitor) Report() {
	m.mu.Lock()
	if len(m.window) == 0 {
		m.mu.Unlock()
		return
	}
	deltas := append([]float64(nil), m.window...)
	jank, severe, total := m.jank, m.severe, m.total
	m.window = m.window[:0]
	m.jank, m.severe, m.total = 0, 0, 0
	m.mu.Unlock()

	var sum float64
	for _, d := range deltas {
		sum += d
	}
	avg := sum / float64(len(deltas))
	fps := 60.0
	if avg > 0 {
		fps = 1000 / avg
	}

	sort.Float64s(deltas)
	p95 := deltas[int(0.95*float64(len(deltas)))]

	// Severe frames are jank too; the tags keep the split.
	var rate float64
	if total > 0 {
		rate = float64(jank+severe) * 100 / float64(total)
	}

	now := m.now()
	m.emit(now, "fps", fps, "fps", nil)
	m.emit(now, "frame_time_p95", p95, "ms", nil)
	m.emit(now, "jank_rate", rate, "%", map[string]any{
		"jank_frames":        jank,
		"severe_jank_frames": severe,
		"total_frames":       total,
	})
}

func (m *Monitor) OnLifecycle(e LifecycleEvent) {
	if !e.State.Valid() {
		m.logger.Debug().Str("state", string(e.State)).Msg("ignoring unknown lifecycle state")
		return
	}
	if e.At.IsZero() {
		e.At = m.now()
	}

	m.mu.Lock()
	var background time.Duration
	switch e.State {
	case Paused:
		m.pausedAt = e.At
	case Resumed:
		if !m.pausedAt.IsZero() {
			background = e.At.Sub(m.pausedAt)
			m.pausedAt = time.Time{}
		}
		// Frames stopped while backgrounded; the gap is not a frame time.
		m.lastFrame = time.Time{}
	}
	m.mu.Unlock()

	m.emit(e.At, "lifecycle", 1, "", map[string]any{"state": string(e.State)})
	if background > 0 {
		m.emit(e.At, "background_duration", float64(background.Milliseconds()), "ms", nil)
	}
}

// RecordMetric emits a custom metric under its own name.
func (m *Monitor) RecordMetric(name string, value float64, unit string, tags map[string]any) error {
	p, err := event.NewPerformance(m.now(), name, value, event.WithUnit(unit), event.WithMetricTags(tags))
	if err != nil {
		return err
	}
	m.recorder.AddPerformance(p)
	return nil
}

// Time measures fn and emits <namespace>.operation.<name> on every exit
// path, panics included. fn's error is returned unchanged.
func (m *Monitor) Time(name string, fn func() error) (err error) {
	start := m.now()
	success := false
	defer func() { m.recordOperation(name, start, success) }()

	err = fn()
	success = err == nil
	return err
}

// TimeContext is Time for work that takes a context.
func (m *Monitor) TimeContext(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	start := m.now()
	success := false
	defer func() { m.recordOperation(name, start, success) }()

	err = fn(ctx)
	success = err == nil
	return err
}

func (m *Monitor) recordOperation(name string, start time.Time, success bool) {
	end := m.now()
	ms := float64(end.Sub(start)) / float64(time.Millisecond)
	m.emit(end, "operation."+name, ms, "ms", map[string]any{"success": success})
}

func (m *Monitor) emit(at time.Time, name string, value float64, unit string, tags map[string]any) {
	p, err := event.NewPerformance(at, m.metric(name), value, event.WithUnit(unit), event.WithMetricTags(tags))
	if err != nil {
		m.logger.Warn().Err(err).Str("metric", name).Msg("dropping metric")
		return
	}
	m.recorder.AddPerformance(p)
}

// Run consumes the host's frame and lifecycle streams and reports on its
// own ticker until ctx is done. A nil channel is never read.
func (m *Monitor) Run(ctx context.Context, frames <-chan time.Time, lifecycle <-chan LifecycleEvent) {
	ticker := time.NewTicker(m.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case at, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			m.OnFrame(at)
		case e, ok := <-lifecycle:
			if !ok {
				lifecycle = nil
				continue
			}
			m.OnLifecycle(e)
		case <-ticker.C:
			m.Report()
		}
	}
}
