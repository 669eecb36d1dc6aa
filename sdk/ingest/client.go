// Package ingest buffers telemetry records per kind and ships them in
// batches to the ingestion API.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/leshachaplin/appsight/internal/apierror"
	"github.com/leshachaplin/appsight/sdk/event"
)

const SDKVersion = "1.2.0"

var userAgent = "appsight-go/" + SDKVersion

type Option func(*Client)

// WithSender replaces the default HTTP transport.
func WithSender(s Sender) Option {
	return func(c *Client) { c.sender = s }
}

// WithLogger sets the debug channel. Send failures are reported here.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

type Client struct {
	cfg    Config
	header http.Header
	sender Sender
	logger zerolog.Logger

	logs    buffer[event.Log]
	errs    buffer[event.Error]
	screens buffer[event.ScreenView]
	traces  buffer[event.Trace]
	metrics buffer[event.Performance]

	flushCh   chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool
}

// New validates cfg, applies defaults and starts the periodic flush loop.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		logger:  zerolog.Nop(),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
	if cfg.Debug {
		c.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().
			Timestamp().
			Str("sdk", "appsight").
			Logger()
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sender == nil {
		var l *zerolog.Logger
		if cfg.Debug {
			l = &c.logger
		}
		c.sender = NewHTTPSender(sendTimeout, l)
	}

	c.header = make(http.Header)
	c.header.Set("Content-Type", "application/json")
	c.header.Set("X-Ingest-Key", cfg.IngestKey)
	c.header.Set("User-Agent", userAgent)

	c.wg.Add(1)
	go c.run()

	c.logger.Debug().
		Str("api_url", cfg.APIURL).
		Str("app", cfg.AppName).
		Str("environment", cfg.Environment).
		Int("batch_size", cfg.BatchSize).
		Dur("flush_interval", cfg.FlushInterval()).
		Msg("ingestion client started")

	return c, nil
}

func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) Logger() zerolog.Logger {
	return c.logger
}

func (c *Client) AddLog(e event.Log) {
	if c.dropped(event.KindLog) {
		return
	}
	c.logs.add(e)
	c.checkThreshold()
}

func (c *Client) AddError(e event.Error) {
	if c.dropped(event.KindError) {
		return
	}
	c.errs.add(e)
	c.checkThreshold()
}

func (c *Client) AddScreenView(e event.ScreenView) {
	if c.dropped(event.KindScreen) {
		return
	}
	c.screens.add(e)
	c.checkThreshold()
}

func (c *Client) AddTrace(e event.Trace) {
	if c.dropped(event.KindTrace) {
		return
	}
	c.traces.add(e)
	c.checkThreshold()
}

func (c *Client) AddPerformance(e event.Performance) {
	if c.dropped(event.KindMetric) {
		return
	}
	c.metrics.add(e)
	c.checkThreshold()
}

// dropped reports whether the client is closed. Nothing drains the buffers
// after Close, so late records are discarded.
func (c *Client) dropped(kind event.Kind) bool {
	if !c.closed.Load() {
		return false
	}
	c.logger.Debug().Str("kind", kind.String()).Msg("client closed, dropping record")
	return true
}

// Stats is a point-in-time view of the buffer lengths.
type Stats struct {
	Logs    int
	Errors  int
	Screens int
	Traces  int
	Metrics int
}

func (s Stats) Total() int {
	return s.Logs + s.Errors + s.Screens + s.Traces + s.Metrics
}

func (c *Client) Stats() Stats {
	return Stats{
		Logs:    c.logs.len(),
		Errors:  c.errs.len(),
		Screens: c.screens.len(),
		Traces:  c.traces.len(),
		Metrics: c.metrics.len(),
	}
}

func (c *Client) checkThreshold() {
	if c.Stats().Total() < c.cfg.BatchSize {
		return
	}
	select {
	case c.flushCh <- struct{}{}:
	default:
	}
}

func (c *Client) run() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.FlushInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Flush(context.Background())
		case <-c.flushCh:
			c.Flush(context.Background())
		}
	}
}

// FlushReport describes one flush cycle.
type FlushReport struct {
	Sent   map[event.Kind]int
	Failed map[event.Kind]error
}

type job struct {
	kind   event.Kind
	count  int
	encode func() ([]byte, error)
}

func newJob[T any](kind event.Kind, items []T) job {
	return job{
		kind:  kind,
		count: len(items),
		encode: func() ([]byte, error) {
			return json.Marshal(map[string][]T{kind.BodyKey(): items})
		},
	}
}

// Flush drains every buffer and sends each non-empty one to its endpoint.
// Sends are independent; a failure is logged and the batch dropped. Flush
// returns after every attempted send has finished.
func (c *Client) Flush(ctx context.Context) FlushReport {
	jobs := []job{
		newJob(event.KindLog, c.logs.drain()),
		newJob(event.KindError, c.errs.drain()),
		newJob(event.KindScreen, c.screens.drain()),
		newJob(event.KindTrace, c.traces.drain()),
		newJob(event.KindMetric, c.metrics.drain()),
	}

	errs := make([]error, len(jobs))
	var group errgroup.Group
	for i, j := range jobs {
		if j.count == 0 {
			continue
		}
		i, j := i, j
		group.Go(func() error {
			errs[i] = c.send(ctx, j)
			return nil
		})
	}
	_ = group.Wait()

	report := FlushReport{
		Sent:   make(map[event.Kind]int),
		Failed: make(map[event.Kind]error),
	}
	for i, j := range jobs {
		if j.count == 0 {
			continue
		}
		if errs[i] != nil {
			report.Failed[j.kind] = errs[i]
			c.logger.Debug().Err(errs[i]).Str("kind", j.kind.String()).Int("dropped", j.count).Msg("flush failed")
			continue
		}
		report.Sent[j.kind] = j.count
		c.logger.Debug().Str("kind", j.kind.String()).Int("count", j.count).Msg("flushed")
	}
	return report
}

func (c *Client) send(ctx context.Context, j job) error {
	body, err := j.encode()
	if err != nil {
		return fmt.Errorf("marshal %s: %w", j.kind, err)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	status, err := c.sender.Send(ctx, c.endpoint(j.kind), c.header, body)
	if err != nil {
		return fmt.Errorf("send %s: %w", j.kind, err)
	}
	if !apierror.IsSuccess(status) {
		return apierror.NewAPIError(fmt.Sprintf("ingest %s rejected", j.kind), status)
	}
	return nil
}

func (c *Client) endpoint(kind event.Kind) string {
	return strings.TrimRight(c.cfg.APIURL, "/") + kind.Path()
}

// Close stops the periodic flush, sends whatever is still buffered and
// releases the transport. Calls after the first are no-ops.
func (c *Client) Close(ctx context.Context) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		c.wg.Wait()

		c.Flush(ctx)
		c.sender.Close()
		release(c)
		c.logger.Debug().Msg("ingestion client closed")
	})
}
