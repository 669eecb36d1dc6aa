package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/leshachaplin/appsight/internal/domain"
)

type WorkerPool interface {
	Start(executeFn func(ctx context.Context, batch domain.Batch) error)
	GracefulStop()
	Process(payload domain.Batch)
}

type Pool struct {
	numWorkers  int
	taskPayload chan domain.Batch
	queue       Queue
	deadLetter  Queue
	start       sync.Once
	stop        sync.Once
	doneChan    chan struct{}
	ctx         context.Context
	cancelFn    context.CancelFunc
	wg          *sync.WaitGroup
	logger      zerolog.Logger
}

type Option func(*Pool)

// WithDeadLetter publishes batches that failed processing to q.
func WithDeadLetter(q Queue) Option {
	return func(p *Pool) { p.deadLetter = q }
}

func New(ctx context.Context, cfg Config, queue Queue, logger zerolog.Logger, opts ...Option) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	c, cancelFn := context.WithCancel(ctx)
	p := &Pool{
		numWorkers:  cfg.NumWorkers,
		taskPayload: make(chan domain.Batch, cfg.NumWorkers),
		doneChan:    make(chan struct{}),
		queue:       queue,
		ctx:         c,
		cancelFn:    cancelFn,
		wg:          &sync.WaitGroup{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (w *Pool) Start(
	executeFn func(ctx context.Context, batch domain.Batch) error,
) {
	w.start.Do(func() {
		for i := 0; i < w.numWorkers; i++ {
			w.wg.Add(1)
			l := w.logger.With().Int("worker", i).Logger()
			go w.work(w.ctx, l, executeFn)
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.queue.Consume(w.ctx, w.taskPayload, w.doneChan)
		}()
	})
}

func (w *Pool) GracefulStop() {
	w.stop.Do(func() {
		close(w.doneChan)
		w.cancelFn()
		w.wg.Wait()
	})
}

func (w *Pool) Process(batch domain.Batch) {
	if err := w.queue.Publish(w.ctx, batch.ID, batch); err != nil {
		w.onFailure(batch, err)
	}
}

func (w *Pool) onFailure(batch domain.Batch, err error) {
	if w.deadLetter == nil {
		w.logger.Error().Err(err).Str("batch_id", batch.ID).Str("category", batch.Category).
			Int("records", len(batch.Records)).Msg("failed to process batch")
		return
	}

	p := payload{
		Payload: batch,
	}
	p.SetErrorReason(err)
	if errPublish := w.deadLetter.Publish(w.ctx, batch.ID, p); errPublish != nil {
		w.logger.Error().Err(err).AnErr("dead_letter", errPublish).Str("batch_id", batch.ID).
			Msg("failed to process batch")
	}
}

func (w *Pool) work(
	ctx context.Context,
	logger zerolog.Logger,
	executeFn func(ctx context.Context, batch domain.Batch) error,
) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.doneChan:
			return
		case pld, ok := <-w.taskPayload:
			if !ok {
				return
			}

			logger.Debug().Str("BATCH_ID", pld.ID).Str("CATEGORY", pld.Category).Int("RECORDS", len(pld.Records)).
				Msg("start processing batch")
			if err := executeFn(ctx, pld); err != nil {
				w.onFailure(pld, err)
			}
			logger.Debug().Str("BATCH_ID", pld.ID).Msg("end processing batch")
		}
	}
}

type payload struct {
	Payload domain.Batch `json:"payload"`
	Error   *errorReason `json:"error_reason"`
}

func (c *payload) SetErrorReason(err error) {
	if c.Error == nil {
		c.Error = new(errorReason)
	}
	c.Error.Reason = err
}

func (c *payload) GetErrorReason() error {
	if c.Error != nil {
		return c.Error.Reason
	}
	return nil
}

type errorReason struct {
	Reason error
}

func (e errorReason) MarshalJSON() ([]byte, error) {
	if e.Reason != nil {
		return json.Marshal(e.Reason.Error())
	}
	return json.Marshal(nil)
}

func (e *errorReason) UnmarshalJSON(data []byte) error {
	var reason string
	if err := json.Unmarshal(data, &reason); err != nil {
		return err
	}
	e.Reason = errors.New(reason)
	return nil
}
