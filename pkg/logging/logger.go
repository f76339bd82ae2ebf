// Package logging configures zerolog for the plexdate tools.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a textual log level as accepted on the command line.
type LogLevel string

const (
	LevelDebug    LogLevel = "debug"
	LevelInfo     LogLevel = "info"
	LevelWarn     LogLevel = "warn"
	LevelError    LogLevel = "error"
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr so stdout stays free for command output.
	Output io.Writer
}

// DefaultConfig logs warnings and errors as JSON to stderr. The CLI prints its
// progress on stdout, so the default keeps logs out of the way.
func DefaultConfig() Config {
	return Config{
		Level:  LevelWarn,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name. An empty level means info.
func ParseLevel(level LogLevel) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug", "trace":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled", "off", "none":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: request flow
//   - Page fetches (section, offset, limit, total)
//   - Cache hits and misses
//   - Individual addedAt updates
//
// Info: run boundaries
//   - Batch start and completion with counts
//   - Retries that eventually succeeded
//
// Warn: degraded but continuing
//   - Retry attempts and backoff
//   - Cache read or write failures (fallback to the server)
//   - Individual item failures inside a batch
//   - Batch interruption
//
// Error: giving up
//   - Retry budget exhausted
//
// Context Fields:
//   - component: emitting package
//   - endpoint: Plex path
//   - section_id, id: section key and item ratingKey
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network, canceled
