package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/debug"
)

// Options configures a Client.
type Options struct {
	// Provider names the provider in errors and logs.
	Provider string

	// BaseURL is prefixed to every request path. A trailing slash is removed.
	BaseURL string

	// Timeout bounds non-streaming requests. Zero means 120s.
	Timeout time.Duration

	// Headers are added to every request.
	Headers map[string]string

	// Authorize sets credentials on an outgoing request.
	Authorize func(*http.Request)

	// Transport overrides the HTTP transport (tests inject one).
	Transport http.RoundTripper
}

// Client performs JSON requests against one provider and maps failures
// into the api error taxonomy. It is safe for concurrent use.
type Client struct {
	opts       Options
	httpClient *http.Client

	// streamClient has no timeout. Streams can legitimately outlast any
	// fixed bound, so their lifetime is controlled by the context.
	streamClient *http.Client
}

// New creates a Client.
func New(opts Options) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	return &Client{
		opts:         opts,
		httpClient:   &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		streamClient: &http.Client{Transport: opts.Transport},
	}
}

// BearerAuth returns an Authorize func setting "Authorization: Bearer key".
// An empty key sends no header.
func BearerAuth(key string) func(*http.Request) {
	return HeaderAuth("Authorization", "Bearer ", key)
}

// HeaderAuth returns an Authorize func setting header to prefix+key.
func HeaderAuth(header, prefix, key string) func(*http.Request) {
	return func(r *http.Request) {
		if key != "" {
			r.Header.Set(header, prefix+key)
		}
	}
}

// Provider returns the provider name used in errors.
func (c *Client) Provider() string {
	return c.opts.Provider
}

// Request describes one call.
type Request struct {
	// Operation names the unified operation for error context.
	Operation string
	Method    string
	Path      string
	Params    url.Values
	// Body is JSON-encoded when non-nil.
	Body any
	// Accept overrides the Accept header.
	Accept string
}

// Do sends req and decodes a 2xx JSON response into out. out may be nil
// to discard the body.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	resp, err := c.send(ctx, c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.MapNetworkError(c.opts.Provider, req.Operation, err)
	}
	debug.Payload("providers", "response body", data)
	if err := json.Unmarshal(data, out); err != nil {
		return api.NewTransportError(c.opts.Provider, req.Operation, resp.StatusCode,
			fmt.Sprintf("failed to parse provider response: %s", err.Error()))
	}
	return nil
}

// DoRaw sends req and returns the raw 2xx body, for binary payloads such
// as synthesized audio.
func (c *Client) DoRaw(ctx context.Context, req Request) ([]byte, string, error) {
	resp, err := c.send(ctx, c.httpClient, req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", api.MapNetworkError(c.opts.Provider, req.Operation, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Open sends req without a client timeout and returns the 2xx response
// for the caller to stream. The caller must close the body.
func (c *Client) Open(ctx context.Context, req Request) (*http.Response, error) {
	return c.send(ctx, c.streamClient, req)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
	return nil
}

func (c *Client) send(ctx context.Context, hc *http.Client, req Request) (*http.Response, error) {
	u := c.opts.BaseURL + req.Path
	if len(req.Params) > 0 {
		u += "?" + req.Params.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
		}
		debug.Payload("providers", "request body", data)
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	for k, v := range c.opts.Headers {
		httpReq.Header.Set(k, v)
	}
	if c.opts.Authorize != nil {
		c.opts.Authorize(httpReq)
	}

	debug.Log("providers", "request",
		"provider", c.opts.Provider, "operation", req.Operation, "method", req.Method, "url", u)

	start := time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, api.MapNetworkError(c.opts.Provider, req.Operation, err)
	}
	debug.Log("providers", "response",
		"provider", c.opts.Provider, "operation", req.Operation,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, api.MapHTTPStatus(c.opts.Provider, req.Operation, resp.StatusCode, ExtractErrorMessage(resp.Body))
	}
	return resp, nil
}

// ExtractErrorMessage reads a provider error body and returns its message.
// It understands the common shapes: {"error":{"message":...}},
// {"error":"..."}, {"message":...} and {"detail":{"message":...}}.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var shape struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return debug.Truncate(strings.TrimSpace(string(data)), 200)
	}
	if msg := messageOf(shape.Error); msg != "" {
		return msg
	}
	if shape.Message != "" {
		return shape.Message
	}
	return messageOf(shape.Detail)
}

func messageOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Message
	}
	return ""
}
