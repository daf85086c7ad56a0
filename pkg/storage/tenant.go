package storage

import "context"

type tenantCtxKey struct{}

// SetTenant scopes ctx to tenantID. Catalogs can differ per tenant when
// tenants bring their own API keys, so stores and the catalog cache
// partition by it.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// GetTenant returns the tenant of ctx, or "" in single-tenant mode.
func GetTenant(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantCtxKey{}).(string)
	return tenant
}
