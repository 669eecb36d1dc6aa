// Command demo is a small host application that drives every SDK producer
// against a running collector.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/leshachaplin/appsight/sdk/errhandler"
	"github.com/leshachaplin/appsight/sdk/httptrace"
	"github.com/leshachaplin/appsight/sdk/ingest"
	"github.com/leshachaplin/appsight/sdk/logger"
	"github.com/leshachaplin/appsight/sdk/perf"
	"github.com/leshachaplin/appsight/sdk/screen"
)

type options struct {
	configPath string
	cfg        ingest.Config
	duration   time.Duration
	target     string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if err = run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("demo", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "SDK YAML config; flags below override it")
	flagSet.StringVar(&opts.cfg.APIURL, "api-url", "http://localhost:8080", "collector base URL")
	flagSet.StringVar(&opts.cfg.IngestKey, "ingest-key", "", "ingest key sent as X-Ingest-Key")
	flagSet.StringVar(&opts.cfg.AppName, "app-name", "appsight-demo", "application name")
	flagSet.StringVar(&opts.cfg.AppVersion, "app-version", "0.0.1", "application version")
	flagSet.BoolVar(&opts.cfg.Debug, "debug", false, "print SDK diagnostics to stderr")
	flagSet.IntVar(&opts.cfg.BatchSize, "batch-size", 0, "flush once this many items are buffered")
	flagSet.DurationVar(&opts.duration, "duration", 5*time.Second, "how long to generate telemetry")
	flagSet.StringVar(&opts.target, "target", "", "URL for the traced HTTP call (default: collector readiness)")

	if err := flagSet.Parse(args); err != nil {
		return options{}, errors.Wrap(err, "parse flags")
	}

	if opts.configPath != "" {
		fileCfg, err := ingest.LoadConfig(opts.configPath)
		if err != nil {
			return options{}, err
		}
		opts.cfg = overlay(fileCfg, opts.cfg, flagSet)
	}
	if opts.target == "" {
		opts.target = opts.cfg.APIURL + "/_/ready"
	}
	return opts, nil
}

// overlay applies explicitly set flags on top of the file config.
func overlay(file, flags ingest.Config, flagSet *pflag.FlagSet) ingest.Config {
	if flagSet.Changed("api-url") || file.APIURL == "" {
		file.APIURL = flags.APIURL
	}
	if flagSet.Changed("ingest-key") {
		file.IngestKey = flags.IngestKey
	}
	if flagSet.Changed("app-name") || file.AppName == "" {
		file.AppName = flags.AppName
	}
	if flagSet.Changed("app-version") || file.AppVersion == "" {
		file.AppVersion = flags.AppVersion
	}
	if flagSet.Changed("debug") {
		file.Debug = flags.Debug
	}
	if flagSet.Changed("batch-size") {
		file.BatchSize = flags.BatchSize
	}
	return file
}

func run(opts options) error {
	client, err := ingest.Init(opts.cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	log := logger.FromClient(client, logger.WithServiceName("demo"))
	console := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().
		Hook(logger.NewHook(log, zerolog.WarnLevel))

	errs := errhandler.New(client,
		errhandler.WithLogger(console),
		errhandler.WithContext(map[string]any{"app": opts.cfg.AppName}),
	)
	monitor := perf.New(client, perf.WithLogger(console))
	observer := screen.NewObserver()
	tracer := httptrace.NewTracer(client, httptrace.WithLogger(console))
	httpClient := &http.Client{
		Timeout:   5 * time.Second,
		Transport: httptrace.NewTransport(http.DefaultTransport, tracer),
	}

	log.Info("demo started", logger.Tag("duration", opts.duration.String()))

	frames := make(chan time.Time)
	lifecycle := make(chan perf.LifecycleEvent)
	transitions := make(chan screen.Transition)

	group, gCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		monitor.Run(gCtx, frames, lifecycle)
		return nil
	})
	group.Go(func() error {
		observer.Run(gCtx, transitions)
		return nil
	})
	group.Go(func() error {
		defer close(frames)
		return produceFrames(gCtx, frames)
	})
	group.Go(func() error {
		defer close(lifecycle)
		return produceLifecycle(gCtx, lifecycle)
	})
	group.Go(func() error {
		defer close(transitions)
		return produceNavigation(gCtx, transitions)
	})
	group.Go(func() error {
		defer errs.Recover()
		err := monitor.TimeContext(gCtx, "checkout", func(ctx context.Context) error {
			return call(ctx, httpClient, opts.target)
		})
		if err != nil {
			errs.Capture(errors.Wrap(err, "checkout"), map[string]any{"target": opts.target})
			console.Warn().Err(err).Msg("traced call failed")
		}
		return nil
	})

	if err = group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		errs.Capture(err, nil)
	}

	monitor.Report()
	log.Info("demo finished")

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()

	stats := client.Stats()
	report := client.Flush(flushCtx)
	for kind, n := range report.Sent {
		console.Info().Str("kind", kind.String()).Int("sent", n).Msg("flushed")
	}
	for kind, err := range report.Failed {
		console.Error().Err(err).Str("kind", kind.String()).Msg("flush failed")
	}
	console.Info().Int("buffered_before_flush", stats.Total()).Msg("done")

	client.Close(flushCtx)
	return nil
}

func call(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer demo")

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("unexpected status %d", res.StatusCode)
	}
	return nil
}

// produceFrames emits frame timestamps at ~60fps with occasional jank.
func produceFrames(ctx context.Context, out chan<- time.Time) error {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	at := time.Now()
	for {
		gap := 16 * time.Millisecond
		switch n := rnd.Intn(100); {
		case n < 2:
			gap = 120 * time.Millisecond
		case n < 10:
			gap = 33 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(gap):
		}
		at = at.Add(gap)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- at:
		}
	}
}

func produceLifecycle(ctx context.Context, out chan<- perf.LifecycleEvent) error {
	states := []perf.LifecycleState{perf.Resumed, perf.Inactive, perf.Paused, perf.Resumed}
	for _, s := range states {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- perf.LifecycleEvent{State: s, At: time.Now()}:
		}
	}
	return nil
}

func produceNavigation(ctx context.Context, out chan<- screen.Transition) error {
	steps := []screen.Transition{
		{Action: screen.Push, Name: "home"},
		{Action: screen.Push, Name: "catalog", Previous: "home"},
		{Action: screen.Push, Name: "product", Previous: "catalog"},
		{Action: screen.Pop, Name: "catalog", Previous: "product"},
		{Action: screen.Replace, Name: "cart", Previous: "catalog"},
	}
	for _, t := range steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(700 * time.Millisecond):
		}

		t.At = time.Now()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- t:
		}
	}
	return nil
}
