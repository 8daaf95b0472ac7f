package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with full technical detail and the request ID, then
// returned to the client as a user-facing message with a support code from
// core.MapError. The HTTP status is derived from the error itself so
// handlers never pick one by hand.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/JonMunkholm/profitrecon/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig), errors.Is(err, core.ErrTooManyRows):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTenantRequired):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, core.ErrSessionKindMismatch):
		return http.StatusConflict
	case errors.Is(err, core.ErrMalformedFile),
		errors.Is(err, core.ErrUnknownKind),
		errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyUploads),
		errors.Is(err, core.ErrQueueFull),
		errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the technical error and writes the user-facing one.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request rejected", attrs...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
