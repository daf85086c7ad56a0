package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/cache"
	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/observability"
	"github.com/rhuss/unigen/pkg/provider"
)

// Engine dispatches unified operations to registered providers.
type Engine struct {
	registry *provider.Registry
	cfg      Config

	modelPages *cache.Cache[api.Page[api.ModelData]]
	models     *cache.Cache[api.ModelData]
	voicePages *cache.Cache[api.Page[api.VoiceData]]
	voices     *cache.Cache[api.VoiceData]
	filePages  *cache.Cache[api.Page[api.UploadedFile]]
	files      *cache.Cache[api.UploadedFile]

	tasks taskSet
}

// New creates an engine over registry.
func New(registry *provider.Registry, cfg Config) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("engine: registry must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	opts := cache.Options{TTL: cfg.CacheTTL, Store: cfg.Store}
	return &Engine{
		registry:   registry,
		cfg:        cfg,
		modelPages: cache.New[api.Page[api.ModelData]]("models", opts),
		models:     cache.New[api.ModelData]("model", opts),
		voicePages: cache.New[api.Page[api.VoiceData]]("voices", opts),
		voices:     cache.New[api.VoiceData]("voice", opts),
		filePages:  cache.New[api.Page[api.UploadedFile]]("files", opts),
		files:      cache.New[api.UploadedFile]("file", opts),
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Providers describes every registered provider.
func (e *Engine) Providers() []provider.Info {
	names := e.registry.Names()
	infos := make([]provider.Info, 0, len(names))
	for _, n := range names {
		if p, ok := e.registry.Get(n); ok {
			infos = append(infos, provider.Describe(p))
		}
	}
	return infos
}

// Provider returns the description of one provider.
func (e *Engine) Provider(name string) (provider.Info, error) {
	p, err := e.resolve(name)
	if err != nil {
		return provider.Info{}, err
	}
	return provider.Describe(p), nil
}

// Supports reports whether the named provider offers op.
func (e *Engine) Supports(name string, op provider.Operation) bool {
	p, ok := e.registry.Get(name)
	return ok && provider.Supports(p, op)
}

// InvalidateProvider drops every cached catalog result of a provider.
func (e *Engine) InvalidateProvider(ctx context.Context, name string) int {
	n := 0
	for _, c := range e.invalidators() {
		n += c.InvalidateProvider(ctx, name)
	}
	debug.Log("cache", "invalidated provider", "provider", name, "entries", n)
	return n
}

// Close closes every provider and the snapshot store.
func (e *Engine) Close() error {
	errs := []error{e.registry.Close()}
	if e.cfg.Store != nil {
		errs = append(errs, e.cfg.Store.Close())
	}
	return errors.Join(errs...)
}

func (e *Engine) invalidators() []cache.Invalidator {
	return []cache.Invalidator{e.modelPages, e.models, e.voicePages, e.voices, e.filePages, e.files}
}

// resolve looks up a provider by name. An unknown name is a local
// validation failure.
func (e *Engine) resolve(name string) (provider.Provider, error) {
	if name == "" {
		return nil, api.NewInvalidRequestError("provider", "provider is required")
	}
	p, ok := e.registry.Get(name)
	if !ok {
		return nil, api.NewInvalidRequestError("provider", fmt.Sprintf("unknown provider %q", name))
	}
	return p, nil
}

// admit checks support and the context; it runs after local validation
// and before any network call.
func (e *Engine) admit(ctx context.Context, p provider.Provider, op provider.Operation) error {
	if !provider.Supports(p, op) {
		debug.Log("engine", "unsupported operation", "provider", p.Name(), "operation", op)
		return api.NewUnsupportedError(p.Name(), string(op))
	}
	return ctx.Err()
}

// call runs fn through the retry policy and records the outcome.
func call[T any](ctx context.Context, e *Engine, p provider.Provider, op provider.Operation, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := retry(ctx, e.cfg.Retry, p.Name(), string(op), fn)
	err = annotate(err, p.Name(), op)
	observability.RecordProviderCall(p.Name(), string(op), outcome(err), time.Since(start).Seconds())
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("provider call failed", "provider", p.Name(), "operation", op, "error", err)
	}
	return v, err
}

// annotate fills in provider and operation on API errors from adapters.
func annotate(err error, providerName string, op provider.Operation) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := api.AsAPIError(err); ok {
		return apiErr.WithContext(providerName, string(op))
	}
	return err
}

// outcome is the metrics status label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	if apiErr, ok := api.AsAPIError(err); ok {
		return string(apiErr.Type)
	}
	return "error"
}
