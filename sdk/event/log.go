package event

import (
	"fmt"
	"time"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

func (l Level) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return true
	}
	return false
}

type Log struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       Level          `json:"level"`
	Message     string         `json:"message"`
	ServiceName string         `json:"serviceName,omitempty"`
	Tags        map[string]any `json:"tags,omitempty"`
	TraceID     string         `json:"traceId,omitempty"`
	SpanID      string         `json:"spanId,omitempty"`
}

type LogOption func(*Log)

func WithServiceName(name string) LogOption {
	return func(l *Log) { l.ServiceName = name }
}

func WithLogTags(tags map[string]any) LogOption {
	return func(l *Log) { l.Tags = copyMap(tags) }
}

func WithTraceContext(traceID, spanID string) LogOption {
	return func(l *Log) {
		l.TraceID = traceID
		l.SpanID = spanID
	}
}

// NewLog builds a log entry stamped with ts.
func NewLog(ts time.Time, level Level, message string, opts ...LogOption) (Log, error) {
	if !level.Valid() {
		return Log{}, fmt.Errorf("log: invalid level %q", level)
	}
	if message == "" {
		return Log{}, missing("log", "message")
	}
	if ts.IsZero() {
		return Log{}, missing("log", "timestamp")
	}

	l := Log{
		Timestamp: ts,
		Level:     level,
		Message:   message,
	}
	for _, opt := range opts {
		opt(&l)
	}
	return l, nil
}
