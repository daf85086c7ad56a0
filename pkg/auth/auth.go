package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
)

// Decision is an authenticator's vote.
type Decision int

const (
	// Yes means credentials are valid. The chain stops and the identity is used.
	Yes Decision = iota

	// No means credentials are present but invalid. The chain stops and the
	// request is rejected.
	No

	// Abstain means this authenticator cannot handle the credentials type.
	// The chain continues to the next authenticator.
	Abstain
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "abstain"
	}
}

// Result carries the outcome of an authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // set only when Decision == Yes
	Err      error     // set only when Decision == No
}

// Scopes understood by the gateway.
const (
	// ScopeApprove allows answering tool approval requests.
	ScopeApprove = "approvals:write"
	// ScopeCatalogWrite allows deleting models, voices and files.
	ScopeCatalogWrite = "catalog:write"
)

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the unique identifier (required, non-empty).
	Subject string

	// ServiceTier selects the caller's rate limit.
	ServiceTier string

	// Scopes lists granted scopes. An empty list grants everything, which
	// is how API keys and anonymous callers behave.
	Scopes []string

	// Metadata carries authenticator-specific data. The key "tenant_id"
	// scopes cached catalogs.
	Metadata map[string]string
}

// TenantID returns the tenant identifier from metadata, or empty string.
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// HasScope reports whether the identity may act within scope.
func (id *Identity) HasScope(scope string) bool {
	if id == nil {
		return false
	}
	return len(id.Scopes) == 0 || slices.Contains(id.Scopes, scope)
}

// Anonymous is the identity given to callers when authentication is off.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", ServiceTier: "default"}
}

// Authenticator examines request credentials and returns a vote.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// AuthenticatorFunc adapts a function to an Authenticator.
type AuthenticatorFunc func(ctx context.Context, r *http.Request) Result

func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request) Result {
	return f(ctx, r)
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain evaluates authenticators in order.
type Chain struct {
	// Authenticators are evaluated left to right.
	Authenticators []Authenticator

	// Default is used when all authenticators abstain. Yes admits the
	// caller as Anonymous.
	Default Decision
}

// Authenticate runs the chain. It stops on the first Yes or No.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.Default == Yes {
		return Result{Decision: Yes, Identity: Anonymous()}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}
