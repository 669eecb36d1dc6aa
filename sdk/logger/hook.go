package logger

import (
	"github.com/rs/zerolog"

	"github.com/leshachaplin/appsight/sdk/event"
)

// Hook forwards zerolog events into the ingestion pipeline. Only the level
// and message survive; zerolog does not expose an event's fields to hooks.
type Hook struct {
	logger *Logger
	min    zerolog.Level
}

func NewHook(l *Logger, min zerolog.Level) Hook {
	return Hook{logger: l, min: min}
}

func (h Hook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if level < h.min || msg == "" {
		return
	}
	lvl, ok := eventLevel(level)
	if !ok {
		return
	}

	// No console mirroring: the hook may be attached to that very logger.
	h.logger.emit(lvl, msg, []Field{Tag("source", "zerolog")}, false)
}

func eventLevel(level zerolog.Level) (event.Level, bool) {
	switch level {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return event.LevelDebug, true
	case zerolog.InfoLevel:
		return event.LevelInfo, true
	case zerolog.WarnLevel:
		return event.LevelWarn, true
	case zerolog.ErrorLevel:
		return event.LevelError, true
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return event.LevelFatal, true
	default:
		return "", false
	}
}
