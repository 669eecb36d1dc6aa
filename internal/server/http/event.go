package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/leshachaplin/appsight/internal/apierror"
	"github.com/leshachaplin/appsight/sdk/event"
)

const maxBodyBytes = 5 << 20

type acceptedResponse struct {
	Category string `json:"category"`
}

func (h *Handler) Ingest(kind event.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			h.error(apierror.NewAPIError(err.Error(), status), w)
			return
		}

		buf := bytes.NewBuffer(data)
		err = h.eventProcessor.ProcessBatch(kind, r.Header.Get(ingestKeyHeader), buf, getClientIP(r), time.Now())
		if err != nil {
			h.logger.Debug().Err(err).Str("category", kind.String()).Msg("rejected batch")
			h.error(err, w)
			return
		}

		if err = encodeJSONResponse(w, http.StatusAccepted, acceptedResponse{Category: kind.String()}); err != nil {
			h.logger.Error().Err(err).Msg("failed to write response")
		}
	}
}
