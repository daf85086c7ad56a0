// Package registry hosts tools implemented as Go functions inside the
// process. A FunctionProvider contributes a named set of tools; the
// FunctionRegistry aggregates providers and implements tools.Executor so
// the engine can run them inside the tool loop.
package registry

import (
	"context"
	"encoding/json"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/tools"
)

// FunctionProvider is a pluggable set of in-process tools.
type FunctionProvider interface {
	// Name returns a unique identifier for this provider (e.g., "clock").
	Name() string

	// Tools returns the tool definitions this provider contributes.
	Tools() []api.ToolDefinition

	// CanExecute reports whether this provider handles the named tool.
	CanExecute(name string) bool

	// Execute runs a tool call and returns the result.
	Execute(ctx context.Context, call api.ToolCall) (*tools.Result, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Handler implements one function tool. args is the decoded JSON object
// the model produced.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Function pairs a definition with its handler.
type Function struct {
	Definition api.ToolDefinition
	Handler    Handler
}

// Funcs is a FunctionProvider backed by plain handlers.
type Funcs struct {
	name  string
	funcs map[string]Function
	order []string
}

var _ FunctionProvider = (*Funcs)(nil)

// NewFuncs builds a provider from fns. Later duplicates replace earlier ones.
func NewFuncs(name string, fns ...Function) *Funcs {
	f := &Funcs{name: name, funcs: make(map[string]Function, len(fns))}
	for _, fn := range fns {
		if _, dup := f.funcs[fn.Definition.Name]; !dup {
			f.order = append(f.order, fn.Definition.Name)
		}
		f.funcs[fn.Definition.Name] = fn
	}
	return f
}

// Name implements FunctionProvider.
func (f *Funcs) Name() string { return f.name }

// Tools implements FunctionProvider.
func (f *Funcs) Tools() []api.ToolDefinition {
	defs := make([]api.ToolDefinition, 0, len(f.order))
	for _, n := range f.order {
		defs = append(defs, f.funcs[n].Definition)
	}
	return defs
}

// CanExecute implements FunctionProvider.
func (f *Funcs) CanExecute(name string) bool {
	_, ok := f.funcs[name]
	return ok
}

// Execute decodes the call arguments and runs the handler. Handler errors
// become error results.
func (f *Funcs) Execute(ctx context.Context, call api.ToolCall) (*tools.Result, error) {
	fn, ok := f.funcs[call.Name]
	if !ok {
		return &tools.Result{CallID: call.ID, Output: "unknown tool " + call.Name, IsError: true}, nil
	}
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return &tools.Result{CallID: call.ID, Output: "invalid arguments JSON: " + err.Error(), IsError: true}, nil
		}
	}
	out, err := fn.Handler(ctx, args)
	if err != nil {
		return &tools.Result{CallID: call.ID, Output: err.Error(), IsError: true}, nil
	}
	return &tools.Result{CallID: call.ID, Output: out}, nil
}

// Close implements FunctionProvider.
func (f *Funcs) Close() error { return nil }
