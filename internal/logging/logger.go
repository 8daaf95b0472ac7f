// Package logging configures log/slog and derives request-scoped loggers.
//
// Loggers taken from a request context carry the chi request ID and the
// resolved tenant and principal, so every line of one import or
// recalculation can be correlated.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/go-chi/chi/v5/middleware"
)

// Setup installs the default logger.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
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

// FromContext returns the default logger enriched with request_id, tenant
// and principal when the context carries them.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if tenant := core.TenantFromContext(ctx); tenant != "" {
		logger = logger.With("tenant", tenant)
	}
	if principal := core.PrincipalFromContext(ctx); principal != "" {
		logger = logger.With("principal", principal)
	}
	return logger
}

// WithFields returns a request logger with additional fields.
//
//	log := logging.WithFields(ctx, "kind", kind, "session", token)
//	log.Info("commit started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
