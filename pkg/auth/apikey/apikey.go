// Package apikey authenticates bearer tokens against a static key list.
// Only SHA-256 digests of the keys are kept in memory.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/unigen/pkg/auth"
)

// Key binds a raw key to the identity it authenticates.
type Key struct {
	Key      string
	Identity auth.Identity
}

type entry struct {
	digest   [sha256.Size]byte
	identity auth.Identity
}

// Authenticator checks "Authorization: Bearer <key>" and "X-API-Key" headers.
type Authenticator struct {
	entries []entry
}

// New hashes keys and returns the authenticator. Empty keys are skipped.
func New(keys []Key) *Authenticator {
	a := &Authenticator{entries: make([]entry, 0, len(keys))}
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		a.entries = append(a.entries, entry{digest: sha256.Sum256([]byte(k.Key)), identity: k.Identity})
	}
	return a
}

// Authenticate abstains when no key is presented. Every entry is compared
// so the running time does not depend on which key matched.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	key, ok := presented(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if key == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	digest := sha256.Sum256([]byte(key))
	match := -1
	for i := range a.entries {
		if subtle.ConstantTimeCompare(digest[:], a.entries[i].digest[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	id := a.entries[match].identity
	if id.ServiceTier == "" {
		id.ServiceTier = "default"
	}
	if len(id.Metadata) > 0 {
		md := make(map[string]string, len(id.Metadata))
		for k, v := range id.Metadata {
			md[k] = v
		}
		id.Metadata = md
	}
	return auth.Result{Decision: auth.Yes, Identity: &id}
}

func presented(r *http.Request) (string, bool) {
	if v := r.Header.Get("X-API-Key"); v != "" {
		return strings.TrimSpace(v), true
	}
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return "", false
	}
	// JWTs have three dot-separated segments. Leave them to the JWT authenticator.
	if strings.Count(token, ".") == 2 {
		return "", false
	}
	return strings.TrimSpace(token), true
}
