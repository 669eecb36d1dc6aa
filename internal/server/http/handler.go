package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/leshachaplin/appsight/internal/apierror"
	"github.com/leshachaplin/appsight/internal/service"
)

const ingestKeyHeader = "X-Ingest-Key"

type Handler struct {
	eventProcessor service.Event
	logger         zerolog.Logger
}

func NewHandler(eventProcessor service.Event, logger zerolog.Logger) *Handler {
	return &Handler{
		eventProcessor: eventProcessor,
		logger:         logger,
	}
}

func (h *Handler) error(err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	var apiErr apierror.Error
	if !errors.As(err, &apiErr) {
		apiErr = apierror.NewAPIError(err.Error(), http.StatusInternalServerError)
	}

	w.WriteHeader(apiErr.StatusCode())
	if err = json.NewEncoder(w).Encode(apiErr); err != nil {
		h.logger.Error().Err(err).Msg("failed to write error response")
	}
}

// requireIngestKey rejects requests whose X-Ingest-Key is not configured.
// An empty key list accepts everything.
func requireIngestKey(keys []string, h *Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) > 0 && !knownKey(keys, r.Header.Get(ingestKeyHeader)) {
				h.error(apierror.NewAPIError("unknown ingest key", http.StatusUnauthorized), w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func knownKey(keys []string, got string) bool {
	if got == "" {
		return false
	}
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(got)) == 1 {
			return true
		}
	}
	return false
}
