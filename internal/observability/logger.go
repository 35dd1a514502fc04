// Package observability provides logging helpers for screenrec.
package observability

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/m-mizutani/masq"

	"github.com/jmylchreest/screenrec/internal/config"
)

// urlCredentials matches a user:password pair in a URL, such as a database DSN.
var urlCredentials = regexp.MustCompile(`://[^/\s:@]+:[^/\s@]+@`)

// newRedactor hides credentials in logged attributes.
func newRedactor() func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(
		masq.WithFieldName("password"),
		masq.WithFieldName("Password"),
		masq.WithRegex(urlCredentials),
	)
}

// NewLogger creates a slog.Logger writing to w in the configured format.
// Credentials in attribute values are redacted.
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	redact := newRedactor()
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return redact(groups, a)
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// WithApp tags the logger with the application name.
func WithApp(logger *slog.Logger, app string) *slog.Logger {
	return logger.With(slog.String("app", app))
}

// TimedOperationWithError logs the start of an operation and returns a
// function logging its completion or failure. errPtr is read when the
// returned function runs, so it may be assigned after this call.
//
// Usage:
//
//	var err error
//	done := observability.TimedOperationWithError(ctx, logger, "record", &err)
//	defer done()
//	err = doSomething()
//
//nolint:gocritic // errPtr must be a pointer to capture errors set after this call
func TimedOperationWithError(ctx context.Context, logger *slog.Logger, operation string, errPtr *error) func() {
	start := time.Now()
	logger.InfoContext(ctx, "operation started", slog.String("operation", operation))

	return func() {
		duration := time.Since(start)
		if errPtr != nil && *errPtr != nil {
			logger.ErrorContext(ctx, "operation failed",
				slog.String("operation", operation),
				slog.Duration("duration", duration),
				slog.String("error", (*errPtr).Error()),
			)
			return
		}
		logger.InfoContext(ctx, "operation completed",
			slog.String("operation", operation),
			slog.Duration("duration", duration),
		)
	}
}
