package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/tools"
)

// ServerClient is the session with one MCP server.
type ServerClient struct {
	cfg     ServerConfig
	session *mcp.ClientSession

	mu     sync.Mutex
	tools  []api.ToolDefinition
	listed bool
}

// NewServerClient creates a client for cfg. Call Connect before use.
func NewServerClient(cfg ServerConfig) *ServerClient {
	return &ServerClient{cfg: cfg}
}

// Name returns the configured server name.
func (c *ServerClient) Name() string { return c.cfg.Name }

// Connect performs the MCP handshake. A nil transport is built from the
// server configuration; tests pass in-memory transports.
func (c *ServerClient) Connect(ctx context.Context, transport mcp.Transport) error {
	client := mcp.NewClient(
		&mcp.Implementation{Name: "unigen", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)

	if transport == nil {
		t, err := c.transport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	debug.Log("mcp", "connected", "server", c.cfg.Name)
	return nil
}

func (c *ServerClient) transport() (mcp.Transport, error) {
	hc := c.httpClient()
	switch c.cfg.Transport {
	case "sse":
		return &mcp.SSEClientTransport{Endpoint: c.cfg.URL, HTTPClient: hc}, nil
	case "streamable-http", "":
		return &mcp.StreamableClientTransport{Endpoint: c.cfg.URL, HTTPClient: hc}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// httpClient returns nil when no headers need to be injected, letting
// the SDK use its default client.
func (c *ServerClient) httpClient() *http.Client {
	var dynamic HeaderSource
	if c.cfg.Auth.Type == "oauth_client_credentials" {
		dynamic = NewClientCredentials(c.cfg.Auth)
	}
	if len(c.cfg.Headers) == 0 && dynamic == nil {
		return nil
	}
	return &http.Client{Transport: &headerTransport{
		base:    http.DefaultTransport,
		static:  c.cfg.Headers,
		dynamic: dynamic,
	}}
}

// ListTools returns the server's tools, fetching them once.
func (c *ServerClient) ListTools(ctx context.Context) ([]api.ToolDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listed {
		return c.tools, nil
	}
	if c.session == nil {
		return nil, fmt.Errorf("MCP server %q not connected", c.cfg.Name)
	}

	var defs []api.ToolDefinition
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		td, err := definition(tool)
		if err != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, err)
		}
		defs = append(defs, td)
	}
	c.tools = defs
	c.listed = true
	return defs, nil
}

// Call runs one tool. Protocol failures are reported as error results.
func (c *ServerClient) Call(ctx context.Context, call api.ToolCall) (*tools.Result, error) {
	if c.session == nil {
		return nil, fmt.Errorf("MCP server %q not connected", c.cfg.Name)
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return &tools.Result{
				CallID:  call.ID,
				Output:  fmt.Sprintf("invalid arguments JSON: %v", err),
				IsError: true,
			}, nil
		}
	}

	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: call.Name, Arguments: args})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &tools.Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("MCP tool call error: %v", err),
			IsError: true,
		}, nil
	}
	return result(call.ID, res), nil
}

// Close ends the session.
func (c *ServerClient) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func definition(t *mcp.Tool) (api.ToolDefinition, error) {
	td := api.ToolDefinition{Name: t.Name, Description: t.Description}
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return api.ToolDefinition{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		td.Parameters = data
	}
	return td, nil
}

// result joins the text content blocks of res.
func result(callID string, res *mcp.CallToolResult) *tools.Result {
	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return &tools.Result{
		CallID:  callID,
		Output:  strings.Join(parts, "\n"),
		IsError: res.IsError,
	}
}
