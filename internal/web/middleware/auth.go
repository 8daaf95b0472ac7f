package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/profitrecon/internal/config"
	"github.com/JonMunkholm/profitrecon/internal/core"
)

// APIKeyAuth returns middleware that validates X-API-Key header against configured keys.
// If RequireAPIKey is false, all requests pass through.
// If RequireAPIKey is true but no keys are configured, all requests are rejected.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				deny(w, http.StatusUnauthorized, "AUTH_MISSING_KEY", "missing API key")
				return
			}

			if !isValidAPIKey(apiKey, cfg.APIKeys) {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				deny(w, http.StatusForbidden, "AUTH_INVALID_KEY", "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Tenant resolves the tenant and principal set by the upstream identity
// layer and stores them on the request context. Requests without a tenant
// are rejected; nothing downstream runs unscoped.
func Tenant(tenantHeader, principalHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := strings.TrimSpace(r.Header.Get(tenantHeader))
			if tenant == "" {
				msg := core.MapError(core.ErrTenantRequired)
				deny(w, http.StatusUnauthorized, msg.Code, msg.Message)
				return
			}

			ctx := core.ContextWithTenant(r.Context(), tenant)
			if principal := strings.TrimSpace(r.Header.Get(principalHeader)); principal != "" {
				ctx = core.ContextWithPrincipal(ctx, principal)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// isValidAPIKey checks if the provided key matches any configured key.
// Every key is compared in constant time so timing does not reveal which
// key, if any, matched.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}

func deny(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
