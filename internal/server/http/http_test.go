package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/leshachaplin/appsight/internal/apierror"
	"github.com/leshachaplin/appsight/internal/service"
	"github.com/leshachaplin/appsight/sdk/event"
)

type call struct {
	kind     event.Kind
	appKey   string
	body     string
	clientIP string
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeProcessor) ProcessBatch(kind event.Kind, appKey string, buf *bytes.Buffer, clientIP string, _ time.Time) error {
	if _, err := service.DecodeBatch(kind, buf.Bytes()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{kind: kind, appKey: appKey, body: buf.String(), clientIP: clientIP})
	return nil
}

func newTestServer(t *testing.T, keys ...string) (*fakeProcessor, *httptest.Server) {
	t.Helper()
	proc := &fakeProcessor{}
	srv := New(NewHandler(proc, zerolog.Nop()), keys)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return proc, ts
}

func post(t *testing.T, url, key, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(ingestKeyHeader, key)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func TestReady(t *testing.T) {
	_, ts := newTestServer(t)

	res, err := http.Get(ts.URL + "/_/ready")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestIngest_RoutesEveryKind(t *testing.T) {
	proc, ts := newTestServer(t, "key-1")

	for _, kind := range event.Kinds {
		body := `{"` + kind.BodyKey() + `":[{"message":"x"}]}`
		res := post(t, ts.URL+kind.Path(), "key-1", body)
		require.Equal(t, http.StatusAccepted, res.StatusCode, kind.String())

		var accepted acceptedResponse
		require.NoError(t, json.NewDecoder(res.Body).Decode(&accepted))
		require.Equal(t, kind.String(), accepted.Category)
	}

	require.Len(t, proc.calls, len(event.Kinds))
	for i, kind := range event.Kinds {
		require.Equal(t, kind, proc.calls[i].kind)
		require.Equal(t, "key-1", proc.calls[i].appKey)
		require.Equal(t, "127.0.0.1", proc.calls[i].clientIP)
	}
}

func TestIngest_Rejections(t *testing.T) {
	cases := map[string]struct {
		key    string
		path   string
		body   string
		status int
	}{
		"missing key": {
			path:   event.KindLog.Path(),
			body:   `{"logs":[{}]}`,
			status: http.StatusUnauthorized,
		},
		"unknown key": {
			key:    "nope",
			path:   event.KindLog.Path(),
			body:   `{"logs":[{}]}`,
			status: http.StatusUnauthorized,
		},
		"wrong body key": {
			key:    "key-1",
			path:   event.KindLog.Path(),
			body:   `{"errors":[{}]}`,
			status: http.StatusBadRequest,
		},
		"malformed json": {
			key:    "key-1",
			path:   event.KindMetric.Path(),
			body:   `{"metrics":`,
			status: http.StatusBadRequest,
		},
		"unknown category": {
			key:    "key-1",
			path:   "/api/ingest/app-crashes",
			body:   `{}`,
			status: http.StatusNotFound,
		},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			proc, ts := newTestServer(t, "key-1")
			res := post(t, ts.URL+tc.path, tc.key, tc.body)
			require.Equal(t, tc.status, res.StatusCode)
			require.Empty(t, proc.calls)

			if tc.status == http.StatusNotFound {
				return
			}
			var apiErr apierror.Error
			require.NoError(t, json.NewDecoder(res.Body).Decode(&apiErr))
			require.Equal(t, tc.status, apiErr.HTTP.Code)
		})
	}
}

func TestIngest_BodyReadFailures(t *testing.T) {
	cases := map[string]struct {
		body   io.Reader
		status int
	}{
		"over the limit": {
			body:   bytes.NewReader(bytes.Repeat([]byte("a"), maxBodyBytes+1)),
			status: http.StatusRequestEntityTooLarge,
		},
		"client went away": {
			body:   iotest.ErrReader(errors.New("connection reset by peer")),
			status: http.StatusBadRequest,
		},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			proc := &fakeProcessor{}
			router := New(NewHandler(proc, zerolog.Nop()), nil).Router()

			req := httptest.NewRequest(http.MethodPost, event.KindLog.Path(), tc.body)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			require.Empty(t, proc.calls)

			var apiErr apierror.Error
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
			require.Equal(t, tc.status, apiErr.HTTP.Code)
		})
	}
}

func TestIngest_NoKeysConfiguredAcceptsAll(t *testing.T) {
	proc, ts := newTestServer(t)

	res := post(t, ts.URL+event.KindScreen.Path(), "", `{"screens":[{"screenName":"home"}]}`)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	require.Len(t, proc.calls, 1)
}

func TestGetClientIP(t *testing.T) {
	cases := map[string]struct {
		remote string
		want   string
	}{
		"host and port": {remote: "10.1.2.3:5000", want: "10.1.2.3"},
		"bare host":     {remote: "8.8.8.8", want: "8.8.8.8"},
		"ipv6 loopback": {remote: "[::1]:5000", want: "127.0.0.1"},
		"unparseable":   {remote: "garbage", want: "0.0.0.0"},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tc.remote
			require.Equal(t, tc.want, getClientIP(req))
		})
	}
}

func TestIngest_ForwardedFor(t *testing.T) {
	proc, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+event.KindLog.Path(), strings.NewReader(`{"logs":[{}]}`))
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusAccepted, res.StatusCode)
	require.Len(t, proc.calls, 1)
	require.Equal(t, "203.0.113.7", proc.calls[0].clientIP)
}
