package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/JonMunkholm/profitrecon/internal/stats"
	"github.com/JonMunkholm/profitrecon/internal/store"
	"github.com/go-chi/chi/v5"
)

// maxRecalculateIDs caps a synchronous per-order recalculation.
const maxRecalculateIDs = 1000

type recalculateAllResponse struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// handleRecalculateAll starts a tenant-wide recalculation in the
// background. A run already in progress for the tenant is superseded.
func (s *Server) handleRecalculateAll(w http.ResponseWriter, r *http.Request) {
	runID, err := s.engine.StartRecalculateAll(tenantOf(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, recalculateAllResponse{RunID: runID, Status: "accepted"})
}

type recalculateRequest struct {
	OrderIDs []string `json:"orderIds"`
}

// handleRecalculateOrders recomputes the named orders now and returns the
// per-order outcome.
func (s *Server) handleRecalculateOrders(w http.ResponseWriter, r *http.Request) {
	var req recalculateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: recalculate body: %v", core.ErrInvalidParameter, err))
		return
	}
	switch n := len(req.OrderIDs); {
	case n == 0:
		s.respondError(w, r, fmt.Errorf("%w: orderIds is required", core.ErrInvalidParameter))
		return
	case n > maxRecalculateIDs:
		s.respondError(w, r, fmt.Errorf("%w: at most %d orderIds per request", core.ErrInvalidParameter, maxRecalculateIDs))
		return
	}

	res, err := s.engine.Recalculate(r.Context(), tenantOf(r), req.OrderIDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	rng, err := stats.ParseRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	d, err := s.stats.Dashboard(r.Context(), tenantOf(r), rng)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleStatistics serves bucketed series for one of orders, purchases,
// logistics or profit.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := stats.ParseRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	period, err := stats.ParsePeriod(q.Get("period"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx, tenant := r.Context(), tenantOf(r)
	var result any
	switch kind := chi.URLParam(r, "kind"); kind {
	case "profit":
		result, err = s.stats.ProfitStats(ctx, tenant, rng, period)
	case string(core.KindOrders):
		result, err = s.stats.OrderStats(ctx, tenant, rng, period)
	case string(core.KindPurchases):
		result, err = s.stats.PurchaseStats(ctx, tenant, rng, period)
	case string(core.KindLogistics):
		result, err = s.stats.LogisticsStats(ctx, tenant, rng, period)
	default:
		err = fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleProfitRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := stats.ParseRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	page, perPage, err := pageQuery(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	incomplete, err := boolQuery(r, "incomplete")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	p, err := s.stats.ProfitRecords(r.Context(), tenantOf(r), store.ProfitFilter{
		Range:          rng,
		IncompleteOnly: incomplete,
		Page:           page,
		PerPage:        perPage,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleKPI(w http.ResponseWriter, r *http.Request) {
	k, err := s.stats.KPI(r.Context(), tenantOf(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}
