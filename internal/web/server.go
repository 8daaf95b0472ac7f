// Package web exposes the import, reconciliation and statistics operations
// over HTTP as a JSON API.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/config"
	"github.com/JonMunkholm/profitrecon/internal/importer"
	"github.com/JonMunkholm/profitrecon/internal/metrics"
	"github.com/JonMunkholm/profitrecon/internal/reconcile"
	"github.com/JonMunkholm/profitrecon/internal/stats"
	mw "github.com/JonMunkholm/profitrecon/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger is a dependency whose reachability is reported by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP layer fronts.
type Deps struct {
	Importer *importer.Service
	Engine   *reconcile.Engine
	Stats    *stats.Aggregator
	Metrics  *metrics.Metrics
	// Checks are pinged by /healthz, keyed by component name.
	Checks map[string]Pinger
}

// Server is the HTTP server for the profit reconciliation API.
type Server struct {
	cfg      *config.Config
	importer *importer.Service
	engine   *reconcile.Engine
	stats    *stats.Aggregator
	metrics  *metrics.Metrics
	checks   map[string]Pinger
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		importer: deps.Importer,
		engine:   deps.Engine,
		stats:    deps.Stats,
		metrics:  deps.Metrics,
		checks:   deps.Checks,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger(s.metrics))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(mw.NewRateLimiter(s.cfg.Rate.RequestsPerMinute).Middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))
		r.Use(mw.Tenant(s.cfg.Security.TenantHeader, s.cfg.Security.PrincipalHeader))

		// Uploads
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.Use(mw.NewRateLimiter(s.cfg.Rate.UploadLimit).Middleware)
			}
			r.Post("/upload/{kind}/preview", s.handlePreview)
			r.Post("/upload/{kind}", s.handleCommit)
		})
		r.Delete("/upload/session/{token}", s.handleDiscard)
		r.Get("/upload/history", s.handleHistory)

		// Reconciliation
		r.Post("/analysis/calculate", s.handleRecalculateAll)
		r.Post("/orders/recalculate-profit", s.handleRecalculateAll)
		r.Post("/orders/recalculate", s.handleRecalculateOrders)

		// Records
		r.Get("/orders", s.handleListOrders)
		r.Get("/purchases", s.handleListPurchases)
		r.Get("/logistics", s.handleListLogistics)

		// Statistics
		r.Get("/analysis/dashboard", s.handleDashboard)
		r.Get("/statistics/{kind}", s.handleStatistics)
		r.Get("/orders/profit", s.handleProfitRecords)
		r.Get("/orders/kpi", s.handleKPI)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		// JSON only; nothing should be rendered or loaded from responses.
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status     string                 `json:"status"`
	Components map[string]string      `json:"components"`
	Uploads    importer.LimiterStatus `json:"uploads"`
	Pending    int                    `json:"pendingRecalculations"`
}

// handleHealth reports dependency reachability. Any failing check turns the
// response into a 503 so load balancers stop routing here.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Components: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for name, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			slog.Warn("health check failed", "component", name, "error", err)
			resp.Components[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}
	if s.importer != nil {
		resp.Uploads = s.importer.Limiter().Status()
	}
	if s.engine != nil {
		resp.Pending = s.engine.Pending()
	}
	writeJSON(w, status, resp)
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
