// Package jwt authenticates RS256/384/512 bearer tokens whose signing
// keys are published at a JWKS endpoint.
package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/rhuss/unigen/pkg/auth"
	"github.com/rhuss/unigen/pkg/debug"
)

// Config holds the validation settings. Empty Issuer or Audience skips
// that check.
type Config struct {
	Issuer   string
	Audience string
	JWKSURL  string

	// Claim names. Defaults: sub, tenant_id, scope and tier.
	UserClaim   string
	TenantClaim string
	ScopesClaim string
	TierClaim   string

	// CacheTTL bounds how long fetched keys are trusted. Default 1h.
	CacheTTL time.Duration
	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration

	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	cfg  Config
	keys *keySet
	opts []jwtlib.ParserOption
}

// New returns an authenticator for cfg.
func New(cfg Config) *Authenticator {
	cfg = cfg.withDefaults()
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}
	return &Authenticator{
		cfg:  cfg,
		keys: &keySet{url: cfg.JWKSURL, ttl: cfg.CacheTTL, client: cfg.HTTPClient, now: time.Now},
		opts: opts,
	}
}

// Authenticate abstains unless the request carries a JWT-shaped bearer
// token. Any validation failure is a No.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.Count(token, ".") != 2 {
		return auth.Result{Decision: auth.Abstain}
	}

	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return a.keys.get(ctx, kid)
	}, a.opts...)
	if err != nil {
		debug.Log("auth", "jwt rejected", "error", err)
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("invalid token: %w", err)}
	}

	subject := stringClaim(claims, a.cfg.UserClaim)
	if subject == "" {
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("token has no %q claim", a.cfg.UserClaim)}
	}

	id := &auth.Identity{
		Subject:     subject,
		ServiceTier: stringClaim(claims, a.cfg.TierClaim),
		Scopes:      scopes(claims[a.cfg.ScopesClaim]),
		Metadata:    map[string]string{},
	}
	if id.ServiceTier == "" {
		id.ServiceTier = "default"
	}
	if tenant := stringClaim(claims, a.cfg.TenantClaim); tenant != "" {
		id.Metadata["tenant_id"] = tenant
	}
	return auth.Result{Decision: auth.Yes, Identity: id}
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// scopes accepts a space-separated string or an array of strings.
func scopes(v any) []string {
	var out []string
	switch s := v.(type) {
	case string:
		out = strings.Fields(s)
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok && str != "" {
				out = append(out, str)
			}
		}
	}
	return out
}

// keySet caches the JWKS. An unknown kid triggers a refresh, and
// concurrent refreshes share one fetch.
type keySet struct {
	url    string
	ttl    time.Duration
	client *http.Client
	now    func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

func (s *keySet) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	fresh := s.now().Sub(s.fetched) < s.ttl
	s.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if _, err, _ := s.group.Do("jwks", func() (any, error) {
		return nil, s.refresh(ctx)
	}); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("kid %q not in key set", kid)
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (s *keySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decoding jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			slog.Warn("skipping jwks key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}

	s.mu.Lock()
	s.keys = keys
	s.fetched = s.now()
	s.mu.Unlock()
	debug.Log("auth", "jwks refreshed", "keys", len(keys), "url", s.url)
	return nil
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
