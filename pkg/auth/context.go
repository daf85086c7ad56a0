package auth

import (
	"context"

	"github.com/rhuss/unigen/pkg/storage"
)

type identityCtxKey struct{}

// WithIdentity attaches id to ctx. A tenant carried by id also scopes the
// catalog cache and snapshot store for the rest of the request.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = context.WithValue(ctx, identityCtxKey{}, id)
	if tenant := id.TenantID(); tenant != "" {
		ctx = storage.SetTenant(ctx, tenant)
	}
	return ctx
}

// IdentityFromContext returns the caller, or nil when the request was not
// authenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*Identity)
	return id
}
