package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/observability"
	"github.com/rhuss/unigen/pkg/tools"
)

// FunctionRegistry aggregates FunctionProviders and implements
// tools.Executor. It routes tool calls to the owning provider and
// recovers from provider panics.
type FunctionRegistry struct {
	mu sync.RWMutex

	// providers stores registered providers in insertion order.
	providers []FunctionProvider

	// toolToProvider maps tool name to the provider that owns it.
	toolToProvider map[string]FunctionProvider
}

var (
	_ tools.Executor = (*FunctionRegistry)(nil)
	_ tools.Definer  = (*FunctionRegistry)(nil)
)

// New creates an empty FunctionRegistry.
func New() *FunctionRegistry {
	return &FunctionRegistry{
		toolToProvider: make(map[string]FunctionProvider),
	}
}

// Register adds a provider. When two providers supply a tool with the
// same name the first registered one keeps it.
func (r *FunctionRegistry) Register(p FunctionProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)

	for _, td := range p.Tools() {
		if existing, ok := r.toolToProvider[td.Name]; ok {
			slog.Warn("function tool name conflict, keeping first provider",
				"tool", td.Name,
				"winner", existing.Name(),
				"loser", p.Name(),
			)
			continue
		}
		r.toolToProvider[td.Name] = p
	}

	debug.Log("engine", "registered function provider",
		"provider", p.Name(),
		"tools", len(p.Tools()),
	)
}

// Kind returns tools.KindFunction.
func (r *FunctionRegistry) Kind() tools.Kind {
	return tools.KindFunction
}

// CanExecute returns true if any registered provider handles the named tool.
func (r *FunctionRegistry) CanExecute(toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.toolToProvider[toolName]
	return ok
}

// Execute routes the call to its provider and records the duration.
func (r *FunctionRegistry) Execute(ctx context.Context, call api.ToolCall) (result *tools.Result, err error) {
	r.mu.RLock()
	p, ok := r.toolToProvider[call.Name]
	r.mu.RUnlock()

	if !ok {
		return &tools.Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("no function provider handles tool %q", call.Name),
			IsError: true,
		}, nil
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("function tool panicked",
				"provider", p.Name(),
				"tool", call.Name,
				"panic", rec,
			)
			result = &tools.Result{
				CallID:  call.ID,
				Output:  fmt.Sprintf("internal error: tool %q panicked", call.Name),
				IsError: true,
			}
			err = nil
		}
		observability.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	}()

	return p.Execute(ctx, call)
}

// Definitions returns the merged tool definitions of all providers.
func (r *FunctionRegistry) Definitions() []api.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []api.ToolDefinition
	for _, p := range r.providers {
		for _, td := range p.Tools() {
			if r.toolToProvider[td.Name] == p {
				all = append(all, td)
			}
		}
	}
	return all
}

// HasProviders returns true if at least one provider is registered.
func (r *FunctionRegistry) HasProviders() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}

// Close closes all registered providers and joins their errors.
func (r *FunctionRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			slog.Warn("failed to close function provider", "provider", p.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
