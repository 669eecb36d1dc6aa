package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/leshachaplin/appsight/internal/domain"
)

const (
	defaultPollFetchesTimeout = 15 * time.Second
	defaultRetryCount         = 10
)

type Config struct {
	Brokers            []string      `yaml:"brokers"`
	ConsumerGroup      string        `yaml:"consumer_group"`
	Topics             []string      `yaml:"topics"`
	RetryCount         int           `yaml:"retry_count"`
	PollFetchesTimeout time.Duration `yaml:"poll_fetches_timeout"`
}

// Consumer reads telemetry batches published by the collector's producer.
type Consumer struct {
	client             *kgo.Client
	retryCount         int
	pollFetchesTimeout time.Duration
	errChan            chan<- error
	logger             zerolog.Logger
}

func NewConsumer(cfg Config, errChan chan<- error, logger zerolog.Logger) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kgo new client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping brokers: %w", err)
	}

	consumer := &Consumer{
		client:  client,
		errChan: errChan,
		logger:  logger,
	}

	if cfg.PollFetchesTimeout == 0 {
		consumer.pollFetchesTimeout = defaultPollFetchesTimeout
	} else {
		consumer.pollFetchesTimeout = cfg.PollFetchesTimeout
	}

	if cfg.RetryCount == 0 {
		consumer.retryCount = defaultRetryCount
	} else {
		consumer.retryCount = cfg.RetryCount
	}

	return consumer, nil
}

func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}

// Consume delivers batches to batchChan until ctx or done ends. A record is
// committed once handed over; undecodable records are committed and skipped.
func (c *Consumer) Consume(ctx context.Context, batchChan chan<- domain.Batch, done <-chan struct{}) {
	c.consume(ctx, done, func(fetches kgo.Fetches) error {
		for iter := fetches.RecordIter(); !iter.Done(); {
			record := iter.Next()

			var batch domain.Batch
			if err := json.Unmarshal(record.Value, &batch); err != nil {
				c.logger.Error().Err(err).Str("key", string(record.Key)).Int64("offset", record.Offset).
					Msg("skipping undecodable batch")
			} else {
				select {
				case batchChan <- batch:
				case <-ctx.Done():
					return ctx.Err()
				case <-done:
					return nil
				}
			}

			if err := c.client.CommitRecords(ctx, record); err != nil {
				return fmt.Errorf("commit record: %w", err)
			}
		}
		return nil
	})
}

func (c *Consumer) consume(ctx context.Context, done <-chan struct{}, fn func(fetches kgo.Fetches) error) {
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.pollFetchesTimeout)
		fetches := c.client.PollFetches(fetchCtx)
		cancel()

		if fetches.IsClientClosed() {
			c.report(errors.New("client closed"))
			return
		}

		err := fetches.Err()
		switch {
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, context.DeadlineExceeded):
			continue
		case err != nil:
			err = fmt.Errorf("poll fetches: %w", err)
		default:
			err = fn(fetches)
		}

		if err == nil {
			failures = 0
			continue
		}
		failures++
		c.logger.Warn().Err(err).Int("failures", failures).Msg("consume")
		if failures >= c.retryCount {
			c.report(fmt.Errorf("%d consecutive failures: %w", failures, err))
			failures = 0
			c.pause(ctx, done)
		}
	}
}

// pause waits one poll interval before the loop tries again.
func (c *Consumer) pause(ctx context.Context, done <-chan struct{}) {
	t := time.NewTimer(c.pollFetchesTimeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-done:
	case <-t.C:
	}
}

// report never blocks the poll loop on a slow error reader.
func (c *Consumer) report(err error) {
	select {
	case c.errChan <- err:
	default:
		c.logger.Warn().Err(err).Msg("consumer error dropped")
	}
}
