package logger

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/leshachaplin/appsight/sdk/event"
)

type logSink struct {
	mu   sync.Mutex
	logs []event.Log
}

func (s *logSink) AddLog(l event.Log) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
}

var fixed = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixed }

func TestLogger_Levels(t *testing.T) {
	sink := &logSink{}
	l := New(sink, WithServiceName("shop"), WithClock(clock))

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")
	l.Fatal("f")

	require.Len(t, sink.logs, 5)
	want := []event.Level{event.LevelDebug, event.LevelInfo, event.LevelWarn, event.LevelError, event.LevelFatal}
	for i, lvl := range want {
		require.Equal(t, lvl, sink.logs[i].Level)
		require.Equal(t, "shop", sink.logs[i].ServiceName)
		require.Equal(t, fixed, sink.logs[i].Timestamp)
	}
}

func TestLogger_Fields(t *testing.T) {
	sink := &logSink{}
	l := New(sink, WithClock(clock))

	l.Info("checkout", Tag("cart", 3), Tags(map[string]any{"user": "u1"}), Trace("t1", "s1"), Service("payments"))

	require.Len(t, sink.logs, 1)
	got := sink.logs[0]
	require.Equal(t, map[string]any{"cart": 3, "user": "u1"}, got.Tags)
	require.Equal(t, "t1", got.TraceID)
	require.Equal(t, "s1", got.SpanID)
	require.Equal(t, "payments", got.ServiceName)
}

func TestLogger_EmptyMessageDropped(t *testing.T) {
	sink := &logSink{}
	buf := &bytes.Buffer{}
	l := New(sink, WithConsole(zerolog.New(buf)))

	l.Info("")
	require.Empty(t, sink.logs)
	require.Contains(t, buf.String(), "dropping log entry")
}

func TestLogger_MirrorsToConsole(t *testing.T) {
	sink := &logSink{}
	buf := &bytes.Buffer{}
	l := New(sink, WithConsole(zerolog.New(buf)))

	l.Warn("disk almost full", Tag("free_mb", 12))
	require.Contains(t, buf.String(), `"message":"disk almost full"`)
	require.Contains(t, buf.String(), `"free_mb":12`)
}

func TestHook_ForwardsZerolog(t *testing.T) {
	sink := &logSink{}
	buf := &bytes.Buffer{}
	console := zerolog.New(buf)
	l := New(sink, WithConsole(console), WithClock(clock))

	app := console.Hook(NewHook(l, zerolog.InfoLevel))
	app.Debug().Msg("too chatty")
	app.Warn().Msg("cache miss storm")

	require.Len(t, sink.logs, 1)
	require.Equal(t, event.LevelWarn, sink.logs[0].Level)
	require.Equal(t, "cache miss storm", sink.logs[0].Message)
	require.Equal(t, "zerolog", sink.logs[0].Tags["source"])
}
