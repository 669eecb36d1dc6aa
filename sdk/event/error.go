package event

import "time"

type Error struct {
	Timestamp  time.Time      `json:"timestamp"`
	Message    string         `json:"message"`
	StackTrace string         `json:"stackTrace,omitempty"`
	ErrorType  string         `json:"errorType,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

type ErrorOption func(*Error)

func WithStackTrace(stack string) ErrorOption {
	return func(e *Error) { e.StackTrace = stack }
}

func WithErrorType(typ string) ErrorOption {
	return func(e *Error) { e.ErrorType = typ }
}

func WithErrorContext(ctx map[string]any) ErrorOption {
	return func(e *Error) { e.Context = copyMap(ctx) }
}

func NewError(ts time.Time, message string, opts ...ErrorOption) (Error, error) {
	if message == "" {
		return Error{}, missing("error", "message")
	}
	if ts.IsZero() {
		return Error{}, missing("error", "timestamp")
	}

	e := Error{
		Timestamp: ts,
		Message:   message,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e, nil
}
