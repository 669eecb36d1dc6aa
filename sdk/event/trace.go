package event

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

type Trace struct {
	TraceID      string         `json:"traceId"`
	SpanID       string         `json:"spanId"`
	ParentSpanID string         `json:"parentSpanId,omitempty"`
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      time.Time      `json:"endTime"`
	DurationMs   int64          `json:"durationMs"`
	StatusCode   int            `json:"statusCode"`
	Status       Status         `json:"status"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// Span carries the required fields of a trace record.
type Span struct {
	TraceID    string
	SpanID     string
	Name       string
	Kind       string
	Start      time.Time
	End        time.Time
	StatusCode int
	Status     Status
}

type TraceOption func(*Trace)

func WithParentSpan(id string) TraceOption {
	return func(t *Trace) { t.ParentSpanID = id }
}

func WithAttributes(attrs map[string]any) TraceOption {
	return func(t *Trace) { t.Attributes = copyMap(attrs) }
}

func NewTrace(span Span, opts ...TraceOption) (Trace, error) {
	switch {
	case span.TraceID == "":
		return Trace{}, missing("trace", "traceId")
	case span.SpanID == "":
		return Trace{}, missing("trace", "spanId")
	case span.Name == "":
		return Trace{}, missing("trace", "name")
	case span.Kind == "":
		return Trace{}, missing("trace", "kind")
	case span.Start.IsZero():
		return Trace{}, missing("trace", "startTime")
	case span.End.IsZero():
		return Trace{}, missing("trace", "endTime")
	}
	if span.Status != StatusOK && span.Status != StatusError {
		return Trace{}, fmt.Errorf("trace: invalid status %q", span.Status)
	}
	if span.End.Before(span.Start) {
		return Trace{}, fmt.Errorf("trace: end %s before start %s", span.End, span.Start)
	}

	t := Trace{
		TraceID:    span.TraceID,
		SpanID:     span.SpanID,
		Name:       span.Name,
		Kind:       span.Kind,
		StartTime:  span.Start,
		EndTime:    span.End,
		DurationMs: span.End.Sub(span.Start).Milliseconds(),
		StatusCode: span.StatusCode,
		Status:     span.Status,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t, nil
}
