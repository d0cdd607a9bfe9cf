// Package telemetry wires process-wide logging to stderr and, when configured, to OpenTelemetry.
package telemetry

import (
	"io"
	"log/slog"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ParseLevel maps LOG_LEVEL values to slog levels. Unknown values yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// NewLogger returns a JSON logger on w. When lp is non-nil, records are also sent through the
// OpenTelemetry log bridge.
func NewLogger(w io.Writer, level slog.Level, serviceName string, lp *sdklog.LoggerProvider) *slog.Logger {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if lp != nil {
		handler = slogmulti.Fanout(
			handler,
			otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(lp)),
		)
	}
	return slog.New(handler).With(slog.String("service", serviceName))
}

// SetupLogging builds the logger with NewLogger and installs it as the slog default.
func SetupLogging(w io.Writer, level, serviceName string, lp *sdklog.LoggerProvider) *slog.Logger {
	logger := NewLogger(w, ParseLevel(level), serviceName, lp)
	slog.SetDefault(logger)
	return logger
}
