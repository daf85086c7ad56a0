package tools

import (
	"context"
	"log/slog"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/observability"
)

// Kind classifies how a tool is hosted.
type Kind int

const (
	// KindFunction is a Go function executed in-process.
	KindFunction Kind = iota

	// KindMCP is a tool offered by a Model Context Protocol server.
	KindMCP
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindMCP:
		return "mcp"
	default:
		return "unknown"
	}
}

// Executor executes tool calls.
type Executor interface {
	// Kind returns the type of tools this executor handles.
	Kind() Kind

	// CanExecute checks if this executor can handle the given tool name.
	CanExecute(toolName string) bool

	// Execute runs the tool and returns the result. A tool that fails
	// reports it through Result.IsError; a non-nil error means the call
	// could not be attempted at all.
	Execute(ctx context.Context, call api.ToolCall) (*Result, error)
}

// Definer is implemented by executors that can describe their tools to
// a model.
type Definer interface {
	Definitions() []api.ToolDefinition
}

// ServerResolver is implemented by executors that route calls to named
// tool servers. The server name is part of an approval request.
type ServerResolver interface {
	ServerFor(toolName string) string
}

// ApprovalPolicy is implemented by executors that decide per tool
// whether a call needs approval. Executors without it are always gated.
type ApprovalPolicy interface {
	RequiresApproval(toolName string) bool
}

// Result represents the output of a tool execution.
type Result struct {
	// CallID matches the originating api.ToolCall.ID.
	CallID string `json:"call_id"`

	// Output is the tool output content (text).
	Output string `json:"output"`

	// IsError indicates that the output is an error message.
	IsError bool `json:"is_error,omitempty"`
}

// Message converts r into the tool-role message fed back to the model.
func (r *Result) Message() api.Message {
	return api.Message{Role: api.RoleTool, Content: r.Output, ToolCallID: r.CallID}
}

// Find returns the first executor that can run name, or nil.
func Find(executors []Executor, name string) Executor {
	for _, e := range executors {
		if e.CanExecute(name) {
			return e
		}
	}
	return nil
}

// Definitions merges the tool definitions of every executor that
// publishes them. Names seen earlier win.
func Definitions(executors []Executor) []api.ToolDefinition {
	seen := make(map[string]bool)
	var defs []api.ToolDefinition
	for _, e := range executors {
		d, ok := e.(Definer)
		if !ok {
			continue
		}
		for _, td := range d.Definitions() {
			if seen[td.Name] {
				continue
			}
			seen[td.Name] = true
			defs = append(defs, td)
		}
	}
	return defs
}

// Run executes call with exec and records the outcome. Execution errors
// are converted into an error result so the model can see them.
func Run(ctx context.Context, exec Executor, call api.ToolCall) (*Result, error) {
	res, err := exec.Execute(ctx, call)
	switch {
	case err != nil && ctx.Err() != nil:
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "cancelled").Inc()
		return nil, ctx.Err()
	case err != nil:
		slog.Warn("tool execution failed",
			"tool", call.Name,
			"kind", exec.Kind().String(),
			"error", err,
		)
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "error").Inc()
		return &Result{CallID: call.ID, Output: "tool execution failed: " + err.Error(), IsError: true}, nil
	case res == nil:
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "success").Inc()
		return &Result{CallID: call.ID}, nil
	case res.IsError:
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "tool_error").Inc()
	default:
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "success").Inc()
	}
	if res.CallID == "" {
		res.CallID = call.ID
	}
	return res, nil
}
