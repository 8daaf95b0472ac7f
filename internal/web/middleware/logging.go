// Package middleware provides HTTP middleware for the web server.
package middleware

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/logging"
	"github.com/JonMunkholm/profitrecon/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// Logger logs every request with its timing and status and records it in
// the HTTP metrics. Metrics are labelled with the chi route pattern, not the
// raw path, so session tokens and kinds do not explode label cardinality.
//
// Log fields: method, path, route, status, duration_ms, ip, user_agent,
// plus request_id and tenant from logging.FromContext.
func Logger(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveHTTP(route, r.Method, ww.status, duration)

			logging.FromContext(r.Context()).Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", ww.status,
				"duration_ms", duration.Milliseconds(),
				"ip", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap provides access to the underlying ResponseWriter.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
