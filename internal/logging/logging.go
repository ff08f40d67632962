// Package logging wires github.com/joeycumines/logiface to zerolog, the
// structured logging stack used throughout the reference corpus.
package logging

import (
	"os"
	"time"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the concrete logger type used across the service.
type Logger = logiface.Logger[*izerolog.Event]

// New constructs the root logger. Output is pretty-printed to stderr
// when production is false, and newline-delimited JSON otherwise.
func New(level string, production bool) *Logger {
	var w zerolog.Logger
	if production {
		w = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		w = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return logiface.New[*izerolog.Event](
		izerolog.WithZerolog(w),
		logiface.WithLevel(parseLevel(level)),
	)
}

func parseLevel(level string) logiface.Level {
	switch level {
	case "debug":
		return logiface.LevelDebug
	case "warn", "warning":
		return logiface.LevelWarning
	case "error":
		return logiface.LevelError
	case "trace":
		return logiface.LevelTrace
	default:
		return logiface.LevelInformational
	}
}
