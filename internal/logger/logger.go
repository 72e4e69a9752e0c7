// Package logger provides structured logging setup for FleetGate.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/fleetgate/fleetgate/internal/config"
)

// queueDepth sizes the buffered handler's record queue.
const queueDepth = 4096

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record.
// The returned Closer flushes pending records when async logging is on;
// callers must Close it on shutdown.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		bh := NewBufferedHandler(handler, queueDepth)
		handler = bh
		closer = bh
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
