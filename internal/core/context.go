package core

import "context"

type contextKey string

const (
	ctxKeyTenant    contextKey = "tenant"
	ctxKeyPrincipal contextKey = "principal"
)

// ContextWithTenant stores the resolved tenant for downstream calls.
func ContextWithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, ctxKeyTenant, tenant)
}

// ContextWithPrincipal stores the authenticated principal for logging.
func ContextWithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, principal)
}

// TenantFromContext extracts the tenant, or "" if none was set.
func TenantFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTenant).(string); ok {
		return v
	}
	return ""
}

// PrincipalFromContext extracts the principal, or "" if none was set.
func PrincipalFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyPrincipal).(string); ok {
		return v
	}
	return ""
}
