package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const sendTimeout = 5 * time.Second

// Sender posts one encoded batch and reports the response status.
type Sender interface {
	Send(ctx context.Context, url string, header http.Header, body []byte) (int, error)
	Close()
}

// HTTPSender is the default Sender. Retries are disabled: a failed batch
// is dropped by the caller.
type HTTPSender struct {
	client *retryablehttp.Client
}

func NewHTTPSender(timeout time.Duration, logger *zerolog.Logger) *HTTPSender {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.HTTPClient.Timeout = timeout
	client.CheckRetry = func(context.Context, *http.Response, error) (bool, error) {
		return false, nil
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil
	if logger != nil {
		client.Logger = leveledLogger{logger: *logger}
	}

	return &HTTPSender{client: client}
}

func (s *HTTPSender) Send(ctx context.Context, url string, header http.Header, body []byte) (int, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return 0, fmt.Errorf("could not create request: %w", err)
	}
	req.Header = header.Clone()

	res, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("could not send request: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return res.StatusCode, nil
}

func (s *HTTPSender) Close() {
	s.client.HTTPClient.CloseIdleConnections()
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
