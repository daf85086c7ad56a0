package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/tools"
)

// Executor implements tools.Executor over a set of MCP servers. Tool
// discovery happens lazily on first use; when two servers offer a tool
// with the same name, the server listed first keeps it.
type Executor struct {
	mu         sync.RWMutex
	clients    []*ServerClient
	gated      map[string]bool // server name -> require approval
	toolServer map[string]*ServerClient
	discovered bool
}

var (
	_ tools.Executor       = (*Executor)(nil)
	_ tools.Definer        = (*Executor)(nil)
	_ tools.ServerResolver = (*Executor)(nil)
)

// NewExecutor wraps already connected clients.
func NewExecutor(clients ...*ServerClient) *Executor {
	e := &Executor{
		clients:    clients,
		gated:      make(map[string]bool),
		toolServer: make(map[string]*ServerClient),
	}
	for _, c := range clients {
		e.gated[c.cfg.Name] = c.cfg.RequireApproval
	}
	return e
}

// Dial connects to every configured server. Servers that cannot be
// reached are logged and skipped; the error lists them.
func Dial(ctx context.Context, cfg Config) (*Executor, error) {
	var clients []*ServerClient
	var errs []error
	for _, sc := range cfg.Servers {
		c := NewServerClient(sc)
		if err := c.Connect(ctx, nil); err != nil {
			slog.Warn("skipping MCP server", "server", sc.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		clients = append(clients, c)
	}
	return NewExecutor(clients...), errors.Join(errs...)
}

// Kind returns tools.KindMCP.
func (e *Executor) Kind() tools.Kind { return tools.KindMCP }

// CanExecute reports whether a connected server offers toolName.
func (e *Executor) CanExecute(toolName string) bool {
	e.discover(context.Background())
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.toolServer[toolName]
	return ok
}

// ServerFor returns the name of the server offering toolName.
func (e *Executor) ServerFor(toolName string) string {
	e.discover(context.Background())
	e.mu.RLock()
	defer e.mu.RUnlock()
	if c, ok := e.toolServer[toolName]; ok {
		return c.cfg.Name
	}
	return ""
}

// RequiresApproval reports whether toolName belongs to a server
// configured with require_approval.
func (e *Executor) RequiresApproval(toolName string) bool {
	server := e.ServerFor(toolName)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gated[server]
}

// Execute routes the call to the owning server.
func (e *Executor) Execute(ctx context.Context, call api.ToolCall) (*tools.Result, error) {
	e.discover(ctx)

	e.mu.RLock()
	c, ok := e.toolServer[call.Name]
	e.mu.RUnlock()
	if !ok {
		return &tools.Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("no MCP server provides tool %q", call.Name),
			IsError: true,
		}, nil
	}

	debug.Log("mcp", "calling tool", "server", c.cfg.Name, "tool", call.Name)
	return c.Call(ctx, call)
}

// Definitions returns the tools of every server, first owner only.
func (e *Executor) Definitions() []api.ToolDefinition {
	e.discover(context.Background())

	e.mu.RLock()
	defer e.mu.RUnlock()

	var defs []api.ToolDefinition
	for _, c := range e.clients {
		c.mu.Lock()
		for _, td := range c.tools {
			if e.toolServer[td.Name] == c {
				defs = append(defs, td)
			}
		}
		c.mu.Unlock()
	}
	return defs
}

// Close closes all sessions and joins their errors.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for _, c := range e.clients {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close MCP session", "server", c.cfg.Name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Executor) discover(ctx context.Context) {
	e.mu.RLock()
	done := e.discovered
	e.mu.RUnlock()
	if done {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.discovered {
		return
	}

	for _, c := range e.clients {
		defs, err := c.ListTools(ctx)
		if err != nil {
			slog.Error("failed to discover MCP tools", "server", c.cfg.Name, "error", err)
			continue
		}
		for _, td := range defs {
			if owner, exists := e.toolServer[td.Name]; exists {
				slog.Warn("duplicate MCP tool name, keeping first server",
					"tool", td.Name,
					"winner", owner.cfg.Name,
					"server", c.cfg.Name,
				)
				continue
			}
			e.toolServer[td.Name] = c
		}
		slog.Info("discovered MCP tools", "server", c.cfg.Name, "count", len(defs))
	}
	e.discovered = true
}
