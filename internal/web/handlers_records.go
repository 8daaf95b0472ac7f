package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/JonMunkholm/profitrecon/internal/stats"
	"github.com/JonMunkholm/profitrecon/internal/store"
)

// pageQuery reads page and per_page.
func pageQuery(r *http.Request) (page, perPage int, err error) {
	if page, err = intQuery(r, "page", 1); err != nil {
		return 0, 0, err
	}
	if perPage, err = intQuery(r, "per_page", stats.DefaultPerPage); err != nil {
		return 0, 0, err
	}
	return page, perPage, nil
}

// listFilter reads the shared listing parameters: page, per_page, search,
// start_date, end_date and a comma-separated order_status.
func listFilter(r *http.Request) (store.ListFilter, error) {
	q := r.URL.Query()
	rng, err := stats.ParseRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		return store.ListFilter{}, err
	}
	page, perPage, err := pageQuery(r)
	if err != nil {
		return store.ListFilter{}, err
	}
	f := store.ListFilter{
		Range:   rng,
		Search:  strings.TrimSpace(q.Get("search")),
		Page:    page,
		PerPage: perPage,
	}
	for _, st := range strings.Split(q.Get("order_status"), ",") {
		if st = strings.TrimSpace(st); st != "" {
			f.Statuses = append(f.Statuses, st)
		}
	}
	return f, nil
}

// serveList answers one of the record listings.
func serveList[T any](s *Server, w http.ResponseWriter, r *http.Request,
	list func(context.Context, string, store.ListFilter) (*stats.Page[T], error)) {
	f, err := listFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p, err := list(r.Context(), tenantOf(r), f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	serveList(s, w, r, s.stats.Orders)
}

// handleListPurchases ignores order_status.
func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	serveList(s, w, r, s.stats.Purchases)
}

func (s *Server) handleListLogistics(w http.ResponseWriter, r *http.Request) {
	serveList(s, w, r, s.stats.Logistics)
}
