package app

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

type Level string

const (
	TRACE Level = "TRACE"
	DEBUG Level = "DEBUG"
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
	PANIC Level = "PANIC"
)

var zeroLevels = map[Level]zerolog.Level{
	TRACE: zerolog.TraceLevel,
	DEBUG: zerolog.DebugLevel,
	INFO:  zerolog.InfoLevel,
	WARN:  zerolog.WarnLevel,
	ERROR: zerolog.ErrorLevel,
	PANIC: zerolog.PanicLevel,
}

// NewZeroLogger builds the collector's JSON logger on stdout. Level names
// are case-insensitive; unknown names fall back to INFO.
func NewZeroLogger(logLevel Level) zerolog.Logger {
	return newZeroLogger(os.Stdout, logLevel)
}

func newZeroLogger(w io.Writer, logLevel Level) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	return zerolog.New(w).
		Level(logLevel.zero()).
		With().
		Timestamp().
		Str("service", "appsight-collector").
		Caller().
		Logger()
}

func (l Level) zero() zerolog.Level {
	if lvl, ok := zeroLevels[Level(strings.ToUpper(string(l)))]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}
