// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

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

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	// Stdout is left alone so the process can be driven over stdio.
	Output io.Writer

	// Secrets are literal strings (API keys) that must never reach the
	// output. Each occurrence is replaced with RedactionMarker.
	Secrets []string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	output = NewRedactingWriter(output, cfg.Secrets...)
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()

	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
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

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: request flow and cache internals
//   - Dispatch of each Bungie request (endpoint, attempt)
//   - Payload cache hit/miss
//   - Manifest version comparison
//
// Info: normal operation events
//   - Manifest loaded/refreshed (version, item count)
//   - Server startup/shutdown
//
// Warn: degraded but working
//   - Retry attempts and upstream throttle hints
//   - Manifest refresh failed, serving stale data
//   - Payload cache disk write failures
//
// Error: failures requiring attention
//   - Requests failed after retries
//   - Manifest unavailable (no local data)
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (bungie-client, manifest-cache, payload-cache, http)
//   - endpoint: Bungie API path
//   - status: HTTP status code
//   - error_code / error_status: Bungie envelope error
//   - error_class: client, server, rate_limit, throttle, application, network, timeout
//   - attempt: retry attempt number
//   - version: manifest version token
