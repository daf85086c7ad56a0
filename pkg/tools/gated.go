package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/approval"
	"github.com/rhuss/unigen/pkg/observability"
)

// GatedExecutor asks an approval gate before delegating to the wrapped
// executor. A denied call, whether by a person or by the default applied
// after the approval timed out, produces an error result instead of
// running the tool.
type GatedExecutor struct {
	inner  Executor
	gate   *approval.Gate
	exempt map[string]bool
}

var (
	_ Executor = (*GatedExecutor)(nil)
	_ Definer  = (*GatedExecutor)(nil)
)

// NewGatedExecutor wraps inner. Tools named in exempt run without asking,
// as do tools the inner executor's ApprovalPolicy does not gate.
func NewGatedExecutor(inner Executor, gate *approval.Gate, exempt ...string) *GatedExecutor {
	g := &GatedExecutor{inner: inner, gate: gate, exempt: make(map[string]bool, len(exempt))}
	for _, name := range exempt {
		g.exempt[name] = true
	}
	return g
}

// Kind returns the kind of the wrapped executor.
func (g *GatedExecutor) Kind() Kind { return g.inner.Kind() }

// CanExecute delegates to the wrapped executor.
func (g *GatedExecutor) CanExecute(toolName string) bool { return g.inner.CanExecute(toolName) }

// Definitions delegates to the wrapped executor when it publishes tools.
func (g *GatedExecutor) Definitions() []api.ToolDefinition {
	if d, ok := g.inner.(Definer); ok {
		return d.Definitions()
	}
	return nil
}

// Execute waits for a decision on call and runs it only when approved.
// Cancellation while waiting is returned as ctx.Err().
func (g *GatedExecutor) Execute(ctx context.Context, call api.ToolCall) (*Result, error) {
	if !g.requiresApproval(call.Name) {
		return g.inner.Execute(ctx, call)
	}

	server := call.Server
	if server == "" {
		if sr, ok := g.inner.(ServerResolver); ok {
			server = sr.ServerFor(call.Name)
		}
	}

	out, err := g.gate.Await(ctx, approval.Request{
		ToolCallID: call.ID,
		Tool:       call.Name,
		Server:     server,
		Arguments:  call.Arguments,
	})
	if err != nil {
		return nil, err
	}

	if out.Approved() {
		return g.inner.Execute(ctx, call)
	}

	observability.ToolExecutionsTotal.WithLabelValues(call.Name, "denied").Inc()
	slog.Info("tool call denied",
		"tool", call.Name,
		"server", server,
		"approval_id", out.ID,
		"defaulted", out.Defaulted,
	)

	msg := fmt.Sprintf("tool %s was denied", call.Name)
	if out.Timeout != nil {
		msg = fmt.Sprintf("tool %s was denied: %s", call.Name, out.Timeout.Message)
	}
	return &Result{CallID: call.ID, Output: msg, IsError: true}, nil
}

func (g *GatedExecutor) requiresApproval(name string) bool {
	if g.exempt[name] {
		return false
	}
	if p, ok := g.inner.(ApprovalPolicy); ok {
		return p.RequiresApproval(name)
	}
	return true
}
