// Package auth authenticates gateway callers and bounds their request rate.
//
// Authenticators vote Yes (identity found), No (credentials present but
// invalid) or Abstain (credentials of another kind). A Chain stops at the
// first Yes or No and falls back to its default decision when everyone
// abstains.
//
// Middleware runs the chain, applies the per-caller rate limit and puts
// the identity and its tenant into the request context. The tenant scopes
// catalog cache entries and persisted snapshots.
package auth
