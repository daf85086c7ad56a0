package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HeaderSource supplies authentication headers for MCP requests.
type HeaderSource interface {
	Headers(ctx context.Context) (map[string]string, error)
}

// ClientCredentials obtains bearer tokens with the OAuth 2.0
// client_credentials grant. A token is reused until 80% of its lifetime
// has passed; if refreshing then fails, the old token is used until it
// actually expires.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	refreshAt time.Time
	client    *http.Client
	now       func() time.Time
}

var _ HeaderSource = (*ClientCredentials)(nil)

// NewClientCredentials creates a token source from an auth config.
func NewClientCredentials(cfg AuthConfig) *ClientCredentials {
	return &ClientCredentials{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		client:       &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Headers returns an Authorization header with a current token.
func (c *ClientCredentials) Headers(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.refreshAt) {
		return bearer(c.token), nil
	}

	token, ttl, err := c.fetch(ctx)
	if err != nil {
		if c.token != "" && now.Before(c.expiresAt) {
			return bearer(c.token), nil
		}
		return nil, fmt.Errorf("acquiring OAuth token: %w", err)
	}

	c.token = token
	c.expiresAt = now.Add(ttl)
	c.refreshAt = now.Add(ttl * 8 / 10)
	return bearer(c.token), nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (c *ClientCredentials) fetch(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
	}
	if len(c.Scopes) > 0 {
		form.Set("scope", strings.Join(c.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("parsing token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}
	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}

// headerTransport adds static and dynamic headers to every request.
// Dynamic headers win on conflict.
type headerTransport struct {
	base    http.RoundTripper
	static  map[string]string
	dynamic HeaderSource
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.static {
		req.Header.Set(k, v)
	}
	if t.dynamic != nil {
		h, err := t.dynamic.Headers(req.Context())
		if err != nil {
			return nil, fmt.Errorf("getting auth headers: %w", err)
		}
		for k, v := range h {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}
