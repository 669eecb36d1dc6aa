// Package logger records application log lines as ingestion log entries.
package logger

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/leshachaplin/appsight/sdk/event"
	"github.com/leshachaplin/appsight/sdk/ingest"
)

type Recorder interface {
	AddLog(event.Log)
}

type Logger struct {
	recorder    Recorder
	serviceName string
	console     zerolog.Logger
	now         func() time.Time
}

type Option func(*Logger)

func WithServiceName(name string) Option {
	return func(l *Logger) { l.serviceName = name }
}

// WithConsole mirrors every entry to a zerolog logger.
func WithConsole(console zerolog.Logger) Option {
	return func(l *Logger) { l.console = console }
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

func New(recorder Recorder, opts ...Option) *Logger {
	l := &Logger{
		recorder: recorder,
		console:  zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FromClient builds a Logger named after the client's app, mirroring to
// the client's debug channel.
func FromClient(c *ingest.Client, opts ...Option) *Logger {
	base := []Option{
		WithServiceName(c.Config().AppName),
		WithConsole(c.Logger()),
	}
	return New(c, append(base, opts...)...)
}

// Field decorates one entry.
type Field func(*entry)

type entry struct {
	tags    map[string]any
	traceID string
	spanID  string
	service string
}

func Tag(key string, value any) Field {
	return func(e *entry) {
		if e.tags == nil {
			e.tags = map[string]any{}
		}
		e.tags[key] = value
	}
}

func Tags(tags map[string]any) Field {
	return func(e *entry) {
		for k, v := range tags {
			Tag(k, v)(e)
		}
	}
}

func Trace(traceID, spanID string) Field {
	return func(e *entry) {
		e.traceID = traceID
		e.spanID = spanID
	}
}

func Service(name string) Field {
	return func(e *entry) { e.service = name }
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(event.LevelDebug, msg, fields) }

func (l *Logger) Info(msg string, fields ...Field) { l.log(event.LevelInfo, msg, fields) }

func (l *Logger) Warn(msg string, fields ...Field) { l.log(event.LevelWarn, msg, fields) }

func (l *Logger) Error(msg string, fields ...Field) { l.log(event.LevelError, msg, fields) }

// Fatal records a fatal entry. It does not exit the process.
func (l *Logger) Fatal(msg string, fields ...Field) { l.log(event.LevelFatal, msg, fields) }

func (l *Logger) log(level event.Level, msg string, fields []Field) {
	l.emit(level, msg, fields, true)
}

func (l *Logger) emit(level event.Level, msg string, fields []Field, mirror bool) {
	e := entry{service: l.serviceName}
	for _, f := range fields {
		f(&e)
	}

	opts := []event.LogOption{event.WithTraceContext(e.traceID, e.spanID)}
	if e.service != "" {
		opts = append(opts, event.WithServiceName(e.service))
	}
	if len(e.tags) > 0 {
		opts = append(opts, event.WithLogTags(e.tags))
	}

	record, err := event.NewLog(l.now(), level, msg, opts...)
	if err != nil {
		l.console.Warn().Err(err).Msg("dropping log entry")
		return
	}

	if mirror {
		l.console.WithLevel(consoleLevel(level)).
			Fields(e.tags).
			Str("trace_id", e.traceID).
			Msg(msg)
	}
	l.recorder.AddLog(record)
}

func consoleLevel(level event.Level) zerolog.Level {
	switch level {
	case event.LevelDebug:
		return zerolog.DebugLevel
	case event.LevelWarn:
		return zerolog.WarnLevel
	case event.LevelError:
		return zerolog.ErrorLevel
	case event.LevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
