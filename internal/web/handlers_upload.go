package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/go-chi/chi/v5"
)

// handlePreview parses an uploaded file and stages it for commit.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	file, name, err := s.formFile(w, r)
	defer closeForm(r, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Upload.Timeout)
	defer cancel()

	result, err := s.importer.Preview(ctx, tenantOf(r), kind, name, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type commitRequest struct {
	SessionToken string `json:"sessionToken"`
}

// handleCommit commits a staged session named in a JSON body, or parses
// and commits a multipart file in one step.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Upload.Timeout)
	defer cancel()

	if isMultipart(r) {
		file, name, err := s.formFile(w, r)
		defer closeForm(r, file)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		result, err := s.importer.ImportDirect(ctx, tenantOf(r), kind, name, file)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	var req commitRequest
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: commit body: %v", core.ErrInvalidParameter, err))
		return
	}
	token := strings.TrimSpace(req.SessionToken)
	if token == "" {
		s.respondError(w, r, fmt.Errorf("%w: sessionToken is required", core.ErrInvalidParameter))
		return
	}

	result, err := s.importer.Commit(ctx, tenantOf(r), kind, token)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDiscard drops a staged session without committing it.
func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := s.importer.Discard(r.Context(), tenantOf(r), chi.URLParam(r, "token")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHistory lists recent commits for the tenant.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 50)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logs, err := s.importer.History(r.Context(), tenantOf(r), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": logs})
}
