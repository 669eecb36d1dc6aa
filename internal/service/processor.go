package service

import (
	"context"

	"github.com/leshachaplin/appsight/internal/domain"
	"github.com/leshachaplin/appsight/internal/worker"
)

type Storage interface {
	StoreBatch(ctx context.Context, batch domain.Batch) error
}

type Service struct {
	eventPool    worker.WorkerPool
	eventStorage Storage
}

func New(eventPool worker.WorkerPool, eventStorage Storage) *Service {
	eventPool.Start(eventStorage.StoreBatch)

	return &Service{
		eventPool:    eventPool,
		eventStorage: eventStorage,
	}
}
