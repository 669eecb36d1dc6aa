package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/leshachaplin/appsight/internal/apierror"
	"github.com/leshachaplin/appsight/internal/domain"
	"github.com/leshachaplin/appsight/sdk/event"
)

type Event interface {
	ProcessBatch(kind event.Kind, appKey string, buf *bytes.Buffer, clientIP string, serverTime time.Time) error
}

// ProcessBatch validates a `{"<kind>": [...]}` body and queues it. The
// batch is handed to the worker pool asynchronously.
func (s *Service) ProcessBatch(kind event.Kind, appKey string, buf *bytes.Buffer, clientIP string, serverTime time.Time) error {
	batch, err := DecodeBatch(kind, buf.Bytes())
	if err != nil {
		return err
	}
	batch.KeyID = domain.KeyID(appKey)
	batch.EnrichWith(clientIP, serverTime)

	go s.eventPool.Process(batch)
	return nil
}

// DecodeBatch parses an SDK flush body for kind.
func DecodeBatch(kind event.Kind, body []byte) (domain.Batch, error) {
	var envelope map[string][]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domain.Batch{}, apierror.NewAPIError(fmt.Sprintf("decode %s body: %v", kind, err), http.StatusBadRequest)
	}

	records, ok := envelope[kind.BodyKey()]
	if !ok {
		return domain.Batch{}, apierror.NewAPIError(fmt.Sprintf("body has no %q key", kind.BodyKey()), http.StatusBadRequest)
	}
	if len(records) == 0 {
		return domain.Batch{}, apierror.NewAPIError("empty batch", http.StatusBadRequest)
	}
	for i, raw := range records {
		if len(raw) == 0 || raw[0] != '{' {
			return domain.Batch{}, apierror.NewAPIError("record is not an object", http.StatusBadRequest).
				WithDetail("index", i)
		}
	}

	return domain.Batch{
		ID:       uuid.NewString(),
		Category: kind.String(),
		Records:  records,
	}, nil
}
