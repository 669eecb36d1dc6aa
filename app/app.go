package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/leshachaplin/appsight/app/waiter"
	"github.com/leshachaplin/appsight/internal/config"
	appServer "github.com/leshachaplin/appsight/internal/server/http"
	"github.com/leshachaplin/appsight/internal/service"
	"github.com/leshachaplin/appsight/internal/storage/event/clickhouse"
	"github.com/leshachaplin/appsight/internal/worker"
	"github.com/leshachaplin/appsight/internal/worker/redpanda/consumer"
	"github.com/leshachaplin/appsight/internal/worker/redpanda/producer"
)

type LoadConfigFn func() (config.Config, error)

type Option func(*App)

// WithStorage replaces the clickhouse storage.
func WithStorage(s service.Storage) Option {
	return func(a *App) { a.storage = s }
}

func WithWaiterOptions(opts ...waiter.Option) Option {
	return func(a *App) { a.waiterOpts = opts }
}

type App struct {
	cfg        config.Config
	logger     zerolog.Logger
	server     *appServer.Server
	storage    service.Storage
	waiter     waiter.Waiter
	waiterOpts []waiter.Option
	ctx        context.Context
	cancelFn   context.CancelFunc
	closers    []io.Closer
}

func New(loadConfigFn LoadConfigFn, opts ...Option) *App {
	ctx, cancelFn := context.WithCancel(context.Background())
	cfg, err := loadConfigFn()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	a := &App{
		cfg:      cfg,
		logger:   NewZeroLogger(Level(cfg.LogLevel)),
		cancelFn: cancelFn,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.waiter = waiter.NewWaiter(ctx, cancelFn, a.waiterOpts...)
	a.ctx = a.waiter.Context()
	return a
}

func (a *App) Start() {
	defer a.cancelFn()
	defer a.close()

	eventQueue, err := a.newQueue()
	if err != nil {
		a.logger.Fatal().Err(err).Msg("Could not setup event queue.")
	}

	l := a.logger.With().Str("WORKER", "EVENT").Logger()
	eventWorker := worker.New(a.ctx, a.cfg.EventWorker, eventQueue, l)

	if a.storage == nil {
		eventStorage, err := a.newClickhouse()
		if err != nil {
			a.logger.Fatal().Err(err).Msg("Could not setup event storage.")
		}
		a.storage = eventStorage
	}

	eventProcessor := service.New(eventWorker, a.storage)
	handler := appServer.NewHandler(eventProcessor, a.logger)

	a.server = appServer.New(handler, a.cfg.IngestKeys)

	a.waitForServer()
	a.waitForWorker(eventWorker)

	if err = a.waiter.Wait(); err != nil {
		a.logger.Fatal().Err(err).Msg("App crash.")
	}
}

func (a *App) Stop() {
	a.waiter.CancelFunc()()
}

func (a *App) newQueue() (worker.Queue, error) {
	if a.cfg.Queue != config.QueueRedpanda {
		return worker.NewMemoryQueue(a.cfg.EventWorker.QueueSize), nil
	}

	consumerErrorChan := make(chan error, 1)
	eventConsumer, err := consumer.NewConsumer(
		a.cfg.EventConsumer,
		consumerErrorChan,
		a.logger.With().Str("event consumer", "Consume").Logger(),
	)
	if err != nil {
		return nil, fmt.Errorf("event consumer: %w", err)
	}
	a.closers = append(a.closers, eventConsumer)
	a.waitForConsumerErrors(consumerErrorChan)

	eventProducer, err := producer.NewProducer(
		a.ctx,
		a.cfg.EventProducer,
		a.logger.With().Str("event producer", "Publish").Logger(),
	)
	if err != nil {
		return nil, fmt.Errorf("event producer: %w", err)
	}
	a.closers = append(a.closers, eventProducer)

	return worker.NewRedpandaQueue(eventProducer, eventConsumer), nil
}

func (a *App) newClickhouse() (*clickhouse.Clickhouse, error) {
	eventStorage, err := clickhouse.New(a.ctx, a.cfg.Clickhouse, a.logger.With().Str("storage", "clickhouse").Logger())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, eventStorage)

	if err = eventStorage.Migrate(a.ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return eventStorage, nil
}

// close releases resources in reverse order of creation.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}

func (a *App) waitForServer() {
	a.waiter.Add(func(ctx context.Context) error {
		defer a.logger.Debug().Msg("server has been shutdown")

		group, gCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			defer a.logger.Debug().Msg("public server exited")
			a.logger.Info().Str("addr", a.cfg.Addr).Msg("starting server")
			err := a.server.ServePublic(a.cfg.Addr)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		group.Go(func() error {
			<-gCtx.Done()
			a.logger.Debug().Msg("shutting down the server")
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			if err := a.server.ShutdownPublic(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("error while shutting down the server")
			}
			return nil
		})

		return group.Wait()
	})
}

func (a *App) waitForWorker(eventWorker worker.WorkerPool) {
	a.waiter.Add(func(ctx context.Context) error {
		<-ctx.Done()
		eventWorker.GracefulStop()
		return nil
	})
}

func (a *App) waitForConsumerErrors(errs <-chan error) {
	a.waiter.Add(func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-errs:
				a.logger.Error().Err(err).Msg("event consumer")
			}
		}
	})
}
