// Package httptrace instruments outbound HTTP requests: it propagates
// trace identifiers and records one client span per request.
package httptrace

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leshachaplin/appsight/sdk/event"
	"github.com/leshachaplin/appsight/sdk/internal/errstack"
)

const (
	HeaderTraceID     = "X-Trace-Id"
	HeaderSpanID      = "X-Span-Id"
	HeaderTraceparent = "traceparent"

	Redacted      = "[REDACTED]"
	maxStackChars = 1024
	spanIDLength  = 16
)

// DefaultSensitiveHeaders are redacted unless WithSensitiveHeaders replaces them.
var DefaultSensitiveHeaders = []string{
	"Authorization",
	"Proxy-Authorization",
	"Cookie",
	"Set-Cookie",
	"X-Api-Key",
	"X-Ingest-Key",
}

type Recorder interface {
	AddTrace(event.Trace)
}

// Exec performs a request, e.g. http.Client.Do or a RoundTripper.
type Exec func(*http.Request) (*http.Response, error)

type Tracer struct {
	recorder  Recorder
	sensitive map[string]struct{}
	now       func() time.Time
	newID     func() string
	logger    zerolog.Logger
}

type Option func(*Tracer)

func WithSensitiveHeaders(names ...string) Option {
	return func(t *Tracer) {
		t.sensitive = headerSet(names)
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracer) { t.now = now }
}

// WithIDGenerator replaces the uuid source. The result must be at least 16
// characters long.
func WithIDGenerator(newID func() string) Option {
	return func(t *Tracer) { t.newID = newID }
}

func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracer) { t.logger = l }
}

func NewTracer(recorder Recorder, opts ...Option) *Tracer {
	t := &Tracer{
		recorder:  recorder,
		sensitive: headerSet(DefaultSensitiveHeaders),
		now:       time.Now,
		newID:     hexUUID,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func hexUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func headerSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

// Do runs exec with trace headers injected and records the outcome. The
// response and error from exec are returned untouched.
func (t *Tracer) Do(req *http.Request, exec Exec) (*http.Response, error) {
	traceID := t.newID()
	spanID := t.newID()
	if len(spanID) > spanIDLength {
		spanID = spanID[:spanIDLength]
	}

	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	req.Header.Set(HeaderTraceID, traceID)
	req.Header.Set(HeaderSpanID, spanID)
	if len(traceID) == 32 && len(spanID) == spanIDLength {
		req.Header.Set(HeaderTraceparent, fmt.Sprintf("00-%s-%s-01", traceID, spanID))
	}

	start := t.now()
	var (
		res *http.Response
		err error
	)
	defer func() {
		t.record(req, res, err, traceID, spanID, start, t.now())
	}()

	res, err = exec(req)
	return res, err
}

func (t *Tracer) record(req *http.Request, res *http.Response, err error, traceID, spanID string, start, end time.Time) {
	attrs := map[string]any{
		"http.method":          req.Method,
		"http.url":             req.URL.String(),
		"http.host":            req.URL.Host,
		"http.path":            req.URL.Path,
		"http.scheme":          req.URL.Scheme,
		"http.request.headers": t.redact(req.Header),
	}

	statusCode := 0
	if res != nil {
		statusCode = res.StatusCode
		attrs["http.status_code"] = statusCode
		attrs["http.response.headers"] = t.redact(res.Header)
	}
	if err != nil {
		attrs["error.type"] = fmt.Sprintf("%T", err)
		attrs["error.message"] = err.Error()
		if stack := errstack.Of(err); stack != "" {
			attrs["error.stack"] = truncate(stack, maxStackChars)
		}
	}

	span, buildErr := event.NewTrace(event.Span{
		TraceID:    traceID,
		SpanID:     spanID,
		Name:       req.Method + " " + req.URL.Path,
		Kind:       "client",
		Start:      start,
		End:        end,
		StatusCode: statusCode,
		Status:     Classify(res, err),
	}, event.WithAttributes(attrs))
	if buildErr != nil {
		t.logger.Warn().Err(buildErr).Str("url", req.URL.String()).Msg("dropping http span")
		return
	}
	t.recorder.AddTrace(span)
}

// Classify maps a request outcome to a span status.
func Classify(res *http.Response, err error) event.Status {
	switch {
	case err != nil, res == nil:
		return event.StatusError
	case res.StatusCode >= 200 && res.StatusCode < 400:
		return event.StatusOK
	default:
		return event.StatusError
	}
}

func (t *Tracer) redact(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if _, ok := t.sensitive[strings.ToLower(name)]; ok {
			out[name] = Redacted
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Transport is an http.RoundTripper that traces every request.
type Transport struct {
	Base   http.RoundTripper
	Tracer *Tracer
}

func NewTransport(base http.RoundTripper, tracer *Tracer) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Tracer: tracer}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.Tracer.Do(req, t.Base.RoundTrip)
}
