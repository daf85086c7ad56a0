package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/observability"
)

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// Middleware authenticates each request with chain, applies limiter when
// it is non-nil and stores the identity and tenant in the request context.
// Paths in bypass are served without either check.
func Middleware(chain *Chain, limiter RateLimiter, bypass []string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", res.Err,
				)
				writeError(w, http.StatusUnauthorized, "unauthenticated", ErrUnauthenticated.Error())
				return
			}
			id := res.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				writeJSON(w, http.StatusInternalServerError, api.NewServerError("internal authentication error"))
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.ServiceTier)
					observability.RateLimitRejectedTotal.WithLabelValues(id.ServiceTier).Inc()
					writeJSON(w, http.StatusTooManyRequests, api.NewTooManyRequestsError(err.Error()))
					return
				}
			}

			debug.Log("auth", "authenticated", "subject", id.Subject, "tier", id.ServiceTier, "path", r.URL.Path)

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireScope rejects requests whose identity lacks scope. Requests
// without an identity pass, so the check is inert when authentication
// is not configured.
func RequireScope(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := IdentityFromContext(r.Context()); id != nil && !id.HasScope(scope) {
			debug.Log("auth", "scope denied", "subject", id.Subject, "scope", scope)
			writeError(w, http.StatusForbidden, "forbidden", "missing scope "+scope)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	e := &api.APIError{Type: api.ErrorTypeInvalidRequest, Code: code, Message: msg}
	writeJSON(w, status, e)
}

func writeJSON(w http.ResponseWriter, status int, e *api.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: e})
}
