// Package logger constructs the application's structured logger.
//
// All components receive a zerolog.Logger and derive their own sub-logger via
// log.With().Str("component", ...).Logger(), so log lines are attributable to
// the component that emitted them.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger construction options.
type Config struct {
	// Level is the minimum level to emit: trace, debug, info, warn, error.
	// Unknown values fall back to info.
	Level string

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool
}

// New creates a logger writing to stderr.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(output)
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.Level(level).With().Timestamp().Logger()
}
