package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi"

	"github.com/leshachaplin/appsight/sdk/event"
)

var ts0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type received struct {
	path   string
	header http.Header
	body   map[string][]json.RawMessage
}

// ingestServer is a fake ingestion API. Paths listed in failing answer 500.
type ingestServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []received
	failing  map[string]bool
}

func newIngestServer(failing ...string) *ingestServer {
	s := &ingestServer{failing: map[string]bool{}}
	for _, p := range failing {
		s.failing[p] = true
	}

	r := chi.NewRouter()
	r.Route("/api/ingest", func(r chi.Router) {
		for _, k := range event.Kinds {
			r.Post(k.Path()[len("/api/ingest"):], s.handle)
		}
	})
	s.Server = httptest.NewServer(r)
	return s
}

func (s *ingestServer) handle(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	body := map[string][]json.RawMessage{}
	if err = json.Unmarshal(data, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, received{path: r.URL.Path, header: r.Header.Clone(), body: body})
	failing := s.failing[r.URL.Path]
	s.mu.Unlock()

	if failing {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *ingestServer) received() []received {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]received, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *ingestServer) byPath(path string) []received {
	var out []received
	for _, r := range s.received() {
		if r.path == path {
			out = append(out, r)
		}
	}
	return out
}

// memorySender counts delivered items per kind without a network. If gate
// is set, every Send waits for it to be closed first.
type memorySender struct {
	mu     sync.Mutex
	counts map[string]int
	calls  int
	gate   chan struct{}
	closed bool
}

func newMemorySender() *memorySender {
	return &memorySender{counts: map[string]int{}}
}

func (m *memorySender) Send(ctx context.Context, url string, _ http.Header, body []byte) (int, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	decoded := map[string][]json.RawMessage{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for key, items := range decoded {
		m.counts[key] += len(items)
	}
	return http.StatusAccepted, nil
}

func (m *memorySender) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *memorySender) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *memorySender) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testConfig(url string) Config {
	return Config{
		APIURL:               url,
		IngestKey:            "key-123",
		AppName:              "shop",
		BatchSize:            1000,
		FlushIntervalSeconds: 3600,
	}
}

func mustLog(msg string) event.Log {
	l, err := event.NewLog(ts0, event.LevelInfo, msg)
	if err != nil {
		panic(err)
	}
	return l
}

func mustMetric(name string) event.Performance {
	p, err := event.NewPerformance(ts0, name, 1)
	if err != nil {
		panic(err)
	}
	return p
}

func addOneOfEach(c *Client) {
	c.AddLog(mustLog("hello"))

	e, _ := event.NewError(ts0, "boom")
	c.AddError(e)

	s, _ := event.NewScreenView(ts0, "home")
	c.AddScreenView(s)

	tr, _ := event.NewTrace(event.Span{
		TraceID: "t", SpanID: "s", Name: "GET /", Kind: "client",
		Start: ts0, End: ts0.Add(time.Millisecond), StatusCode: 200, Status: event.StatusOK,
	})
	c.AddTrace(tr)

	c.AddPerformance(mustMetric("flutter.fps"))
}
