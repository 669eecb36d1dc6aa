package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leshachaplin/appsight/internal/domain"
	"github.com/leshachaplin/appsight/internal/worker/redpanda/consumer"
	"github.com/leshachaplin/appsight/internal/worker/redpanda/producer"
)

type Queue interface {
	Publish(ctx context.Context, key string, payload any) error
	Consume(ctx context.Context, taskPayload chan<- domain.Batch, done <-chan struct{})
}

type RedpandaQueue struct {
	producer *producer.Producer
	consumer *consumer.Consumer
}

func NewRedpandaQueue(producer *producer.Producer, consumer *consumer.Consumer) *RedpandaQueue {
	return &RedpandaQueue{
		producer: producer,
		consumer: consumer,
	}
}

func (r *RedpandaQueue) Publish(ctx context.Context, key string, payload any) error {
	if err := r.producer.Publish(ctx, key, payload); err != nil {
		return err
	}
	return nil
}

func (r *RedpandaQueue) Consume(ctx context.Context, taskPayload chan<- domain.Batch, done <-chan struct{}) {
	r.consumer.Consume(ctx, taskPayload, done)
}

// MemoryQueue keeps batches in process. Used when no broker is configured.
type MemoryQueue struct {
	ch chan []byte
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{ch: make(chan []byte, size)}
}

// Publish round-trips through JSON so consumers see the same shape a
// broker would deliver.
func (m *MemoryQueue) Publish(ctx context.Context, _ string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	select {
	case m.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MemoryQueue) Consume(ctx context.Context, taskPayload chan<- domain.Batch, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case b := <-m.ch:
			var batch domain.Batch
			if err := json.Unmarshal(b, &batch); err != nil {
				continue
			}
			select {
			case taskPayload <- batch:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}
}
