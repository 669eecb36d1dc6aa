package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

type Config struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
}

// Producer publishes accepted telemetry batches, keyed by batch id.
type Producer struct {
	retryAttempts int
	retryDelay    time.Duration
	client        *kgo.Client
	logger        zerolog.Logger
}

func NewProducer(
	ctx context.Context,
	cfg Config,
	logger zerolog.Logger,
) (*Producer, error) {
	clientOpts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	}

	client, err := kgo.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("kgo new client: %w", err)
	}

	if err = client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping brokers: %w", err)
	}

	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	producer := &Producer{
		client:        client,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		logger:        logger,
	}

	return producer, nil
}

func (p *Producer) Close() error {
	p.client.Close()
	return nil
}

// Publish sends msg as JSON keyed by key. Attempts back off linearly and
// stop early once ctx is done.
func (p *Producer) Publish(ctx context.Context, key string, msg any) error {
	const publishTimeout = 5 * time.Second

	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	record := &kgo.Record{
		Key:     []byte(key),
		Value:   b,
		Headers: []kgo.RecordHeader{{Key: "content-type", Value: []byte("application/json")}},
	}

	return linearBackOff(ctx, &p.logger, p.retryAttempts, p.retryDelay, func() error {
		produceCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		if err := p.client.ProduceSync(produceCtx, record).FirstErr(); err != nil {
			return fmt.Errorf("produce sync: %w", err)
		}
		return nil
	})
}

func linearBackOff(ctx context.Context, log *zerolog.Logger, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}

		log.Warn().Err(err).Int("attempt", i+1).Int("of", attempts).Msg("publish failed")
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay * time.Duration(i+1)):
		}
	}
	return err
}
