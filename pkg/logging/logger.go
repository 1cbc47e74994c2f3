// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Format selects the log encoding.
type Format string

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"

	// FormatConsole writes human-readable lines.
	FormatConsole Format = "console"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Format is json (default) or console.
	Format Format

	// Color enables ANSI colors in console format.
	Color bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Color:  false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.Format == FormatConsole {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    !cfg.Color,
		}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// IsValidLevel reports whether level names one of the supported levels.
func IsValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithSource tags logger with the name of the harvested source.
func WithSource(logger zerolog.Logger, source string) zerolog.Logger {
	return logger.With().Str("source", source).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request detail
//   - Query parameters of each page request
//   - Cache hits, conditional requests
//   - Pacing waits
//
// Info: harvest lifecycle
//   - Harvest start/finish with record counts
//   - Requests that succeeded after retry
//
// Warn: degraded but continuing
//   - Retry attempts and Retry-After waits
//   - Total-count inconsistencies
//   - Declared total not matched at the end of a harvest
//   - Cache errors (fallback to direct request)
//
// Error: harvest aborted
//   - Retries exhausted, non-retryable HTTP status
//   - Extraction failures
//   - Sink failures
//
// Context Fields:
//   - component: package-level emitter (transport, harvest, cache, ...)
//   - source: configured source name
//   - page / offset: pagination cursor
//   - status: HTTP status code
//   - error_class: network, server, rate_limit, client
//   - attempt: 1-based attempt number
//   - emitted: records handed to the sink so far
