package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"github.com/leshachaplin/appsight/internal/apierror"
	"github.com/leshachaplin/appsight/sdk/event"
)

type ClientTestSuite struct {
	ctx    context.Context
	server *ingestServer

	suite.Suite
}

func (s *ClientTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.server = newIngestServer(event.KindLog.Path())
}

func (s *ClientTestSuite) TearDownTest() {
	s.server.Close()
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) newClient(cfg Config) *Client {
	c, err := New(cfg)
	s.Require().NoError(err)
	return c
}

func (s *ClientTestSuite) TestFlush_OneSendPerKind() {
	c := s.newClient(testConfig(s.server.URL))
	defer c.Close(s.ctx)

	c.AddLog(mustLog("first"))
	c.AddLog(mustLog("second"))
	c.AddLog(mustLog("third"))
	addOneOfEach(c)

	report := c.Flush(s.ctx)

	s.Require().Len(s.server.received(), 5)
	for _, k := range event.Kinds {
		reqs := s.server.byPath(k.Path())
		s.Require().Len(reqs, 1, k.String())
		s.Require().Contains(reqs[0].body, k.BodyKey())
		s.Require().Equal("application/json", reqs[0].header.Get("Content-Type"))
		s.Require().Equal("key-123", reqs[0].header.Get("X-Ingest-Key"))
		s.Require().Equal(userAgent, reqs[0].header.Get("User-Agent"))
	}

	logs := s.server.byPath(event.KindLog.Path())[0].body["logs"]
	s.Require().Len(logs, 4)
	var messages []string
	for _, raw := range logs {
		var l event.Log
		s.Require().NoError(json.Unmarshal(raw, &l))
		messages = append(messages, l.Message)
	}
	s.Require().Equal([]string{"first", "second", "third", "hello"}, messages)

	s.Require().Equal(Stats{}, c.Stats())
	s.Require().Contains(report.Failed, event.KindLog)
	s.Require().Len(report.Sent, 4)
}

func (s *ClientTestSuite) TestFlush_FailureIsIsolated() {
	c := s.newClient(testConfig(s.server.URL))
	defer c.Close(s.ctx)

	addOneOfEach(c)
	report := c.Flush(s.ctx)

	var apiErr apierror.Error
	s.Require().True(errors.As(report.Failed[event.KindLog], &apiErr))
	s.Require().Equal(http.StatusInternalServerError, apiErr.StatusCode())

	for _, k := range []event.Kind{event.KindError, event.KindScreen, event.KindTrace, event.KindMetric} {
		s.Require().Equal(1, report.Sent[k], k.String())
		s.Require().Len(s.server.byPath(k.Path()), 1)
	}
	// Dropped, not requeued.
	s.Require().Zero(c.Stats().Total())
}

func (s *ClientTestSuite) TestFlush_EmptyBuffersSendNothing() {
	c := s.newClient(testConfig(s.server.URL))
	defer c.Close(s.ctx)

	report := c.Flush(s.ctx)
	s.Require().Empty(report.Sent)
	s.Require().Empty(report.Failed)
	s.Require().Empty(s.server.received())
}

func (s *ClientTestSuite) TestFlush_TransportErrorIsSwallowed() {
	url := s.server.URL
	s.server.Close()

	c := s.newClient(testConfig(url))
	defer c.Close(s.ctx)

	addOneOfEach(c)
	report := c.Flush(s.ctx)
	s.Require().Len(report.Failed, 5)
	s.Require().Empty(report.Sent)
}

func (s *ClientTestSuite) TestBatchSizeTriggersFlush() {
	cfg := testConfig(s.server.URL)
	cfg.BatchSize = 3
	c := s.newClient(cfg)
	defer c.Close(s.ctx)

	c.AddPerformance(mustMetric("a"))
	c.AddPerformance(mustMetric("b"))
	s.Require().Empty(s.server.received())

	c.AddScreenView(event.ScreenView{Timestamp: ts0, ScreenName: "home"})

	s.Require().Eventually(func() bool {
		return len(s.server.byPath(event.KindMetric.Path())) == 1 &&
			len(s.server.byPath(event.KindScreen.Path())) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func (s *ClientTestSuite) TestPeriodicFlush() {
	cfg := testConfig(s.server.URL)
	cfg.FlushIntervalSeconds = 1
	c := s.newClient(cfg)
	defer c.Close(s.ctx)

	c.AddPerformance(mustMetric("a"))

	s.Require().Eventually(func() bool {
		return len(s.server.byPath(event.KindMetric.Path())) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func (s *ClientTestSuite) TestClose_FinalFlush() {
	c := s.newClient(testConfig(s.server.URL))
	c.AddPerformance(mustMetric("a"))
	c.Close(s.ctx)
	c.Close(s.ctx)

	s.Require().Len(s.server.byPath(event.KindMetric.Path()), 1)
}

func TestClose_StopsLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sender := newMemorySender()
	c, err := New(testConfig("http://ingest.local"), WithSender(sender))
	require.NoError(t, err)

	c.AddLog(mustLog("last words"))
	c.Close(context.Background())

	require.Equal(t, 1, sender.count("logs"))
	require.True(t, sender.closed)

	// Nothing flushes after Close.
	c.AddLog(mustLog("too late"))
	require.Equal(t, 1, sender.totalCalls())
}

func TestClose_LateRecordsAreDropped(t *testing.T) {
	sender := newMemorySender()
	cfg := testConfig("http://ingest.local")
	cfg.BatchSize = 2
	c, err := New(cfg, WithSender(sender))
	require.NoError(t, err)
	c.Close(context.Background())

	for i := 0; i < 1000; i++ {
		c.AddLog(mustLog("after shutdown"))
	}
	c.AddPerformance(mustMetric("after.shutdown"))

	require.Zero(t, c.Stats().Total())
	require.Zero(t, sender.totalCalls())
	require.Zero(t, c.Flush(context.Background()).Sent[event.KindLog])
}

func TestFlush_EventsDuringSendGoToNextFlush(t *testing.T) {
	sender := newMemorySender()
	sender.gate = make(chan struct{})

	c, err := New(testConfig("http://ingest.local"), WithSender(sender))
	require.NoError(t, err)
	defer c.Close(context.Background())

	c.AddLog(mustLog("before"))

	done := make(chan FlushReport)
	go func() { done <- c.Flush(context.Background()) }()

	require.Eventually(t, func() bool { return c.Stats().Logs == 0 }, time.Second, time.Millisecond)
	c.AddLog(mustLog("during"))
	close(sender.gate)

	report := <-done
	require.Equal(t, 1, report.Sent[event.KindLog])
	require.Equal(t, 1, c.Stats().Logs)

	report = c.Flush(context.Background())
	require.Equal(t, 1, report.Sent[event.KindLog])
	require.Equal(t, 2, sender.count("logs"))
}

func TestConcurrentProducersLoseNothing(t *testing.T) {
	sender := newMemorySender()
	cfg := testConfig("http://ingest.local")
	cfg.BatchSize = 7
	c, err := New(cfg, WithSender(sender))
	require.NoError(t, err)

	const producers, perProducer = 8, 250
	wg := &sync.WaitGroup{}
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if i%2 == 0 {
					c.AddLog(mustLog("x"))
				} else {
					c.AddPerformance(mustMetric("y"))
				}
				if i%50 == 0 {
					c.Flush(context.Background())
				}
			}
		}(p)
	}
	wg.Wait()
	c.Close(context.Background())

	require.Equal(t, producers*perProducer/2, sender.count("logs"))
	require.Equal(t, producers*perProducer/2, sender.count("metrics"))
	require.True(t, sender.closed)
}

func TestNew_InvalidConfig(t *testing.T) {
	cases := map[string]Config{
		"no url":     {IngestKey: "k", AppName: "a"},
		"bad scheme": {APIURL: "ftp://x", IngestKey: "k", AppName: "a"},
		"no key":     {APIURL: "http://x", AppName: "a"},
		"no app":     {APIURL: "http://x", IngestKey: "k"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{APIURL: "http://x", IngestKey: "k", AppName: "a"}, WithSender(newMemorySender()))
	require.NoError(t, err)
	defer c.Close(context.Background())

	cfg := c.Config()
	require.Equal(t, "production", cfg.Environment)
	require.Equal(t, 50, cfg.BatchSize)
	require.Equal(t, 10*time.Second, cfg.FlushInterval())
	require.False(t, cfg.Debug)
}
