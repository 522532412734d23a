// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls the logger created by Setup.
type Options struct {
	// Level is a zerolog level name ("debug", "info", ...). Defaults to info.
	Level string
	// Console switches to the human readable console writer (local development).
	Console bool
	// Writer overrides the destination. Defaults to os.Stdout.
	Writer io.Writer
}

// New builds a logger with a timestamp field.
func New(opts Options) zerolog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	if opts.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(ParseLevel(opts.Level))
}

// Setup replaces the global logger and level.
func Setup(opts Options) {
	logger := New(opts)
	zerolog.SetGlobalLevel(logger.GetLevel())
	log.Logger = logger
}

// ParseLevel returns the named level, falling back to info.
func ParseLevel(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
