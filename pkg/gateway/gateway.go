// Package gateway assembles a runnable unigen gateway from configuration:
// provider adapters, snapshot storage, the approval gate, tool executors,
// the engine and the authentication chain.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/rhuss/unigen/pkg/approval"
	"github.com/rhuss/unigen/pkg/auth"
	"github.com/rhuss/unigen/pkg/auth/apikey"
	"github.com/rhuss/unigen/pkg/auth/jwt"
	"github.com/rhuss/unigen/pkg/config"
	"github.com/rhuss/unigen/pkg/engine"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/provider/anthropic"
	"github.com/rhuss/unigen/pkg/provider/elevenlabs"
	"github.com/rhuss/unigen/pkg/provider/gemini"
	"github.com/rhuss/unigen/pkg/provider/ollama"
	"github.com/rhuss/unigen/pkg/provider/openai"
	"github.com/rhuss/unigen/pkg/provider/openaicompat"
	"github.com/rhuss/unigen/pkg/provider/openrouter"
	"github.com/rhuss/unigen/pkg/storage"
	"github.com/rhuss/unigen/pkg/storage/memory"
	"github.com/rhuss/unigen/pkg/storage/postgres"
	"github.com/rhuss/unigen/pkg/tools"
	"github.com/rhuss/unigen/pkg/tools/mcp"
	"github.com/rhuss/unigen/pkg/tools/registry"
	"github.com/rhuss/unigen/pkg/transport"
	transporthttp "github.com/rhuss/unigen/pkg/transport/http"
)

// Gateway holds the assembled components.
type Gateway struct {
	Config *config.Config
	Engine *engine.Engine
	Gate   *approval.Gate
	Store  storage.Store
	Auth   *auth.Chain
	Limit  auth.RateLimiter

	mcp *mcp.Executor
}

// Build wires every component described by cfg. On error, whatever was
// already opened is closed again.
func Build(ctx context.Context, cfg *config.Config) (_ *Gateway, err error) {
	gw := &Gateway{Config: cfg}
	defer func() {
		if err != nil {
			_ = gw.Close()
		}
	}()

	reg, err := NewRegistry(cfg.Providers)
	if err != nil {
		return nil, err
	}

	if gw.Store, err = OpenStore(ctx, cfg.Storage); err != nil {
		_ = reg.Close()
		return nil, err
	}

	if gw.Gate, err = NewGate(cfg.Approval); err != nil {
		_ = reg.Close()
		return nil, err
	}

	execs, err := gw.executors(ctx)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	gw.Engine, err = engine.New(reg, engine.Config{
		Retry:           cfg.Engine.Retry,
		CacheTTL:        cfg.Cache.TTL,
		MaxToolTurns:    cfg.Engine.MaxToolTurns,
		AllowedTools:    cfg.Engine.AllowedTools,
		SequentialTools: cfg.Engine.SequentialTools,
		Store:           gw.Store,
		Executors:       execs,
	})
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	gw.Auth, err = NewAuthChain(cfg.Auth)
	if err != nil {
		return nil, err
	}
	gw.Limit = NewRateLimiter(cfg.Auth.RateLimit)

	slog.Info("gateway assembled",
		"providers", reg.Names(),
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
		"approval_responder", cfg.Approval.Responder,
		"executors", len(execs),
	)
	return gw, nil
}

// Server returns the HTTP server for the gateway. Extra options are
// applied after the ones derived from configuration.
func (gw *Gateway) Server(opts ...transporthttp.ServerOption) *transporthttp.Server {
	cfg := gw.Config
	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	bypass := append([]string{}, auth.DefaultBypassEndpoints...)
	if metricsPath != "" {
		bypass = append(bypass, metricsPath)
	}

	base := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithReadTimeout(cfg.Server.ReadTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithMetricsPath(metricsPath),
		transporthttp.WithHealthCheck(gw.healthy),
		transporthttp.WithHTTPMiddleware(auth.Middleware(gw.Auth, gw.Limit, bypass)),
	}
	return transporthttp.NewServer(transporthttp.Backend{
		Generator: transport.NewEngineGenerator(gw.Engine),
		Catalog:   gw.Engine,
		Approvals: gw.Gate,
		Tasks:     gw.Engine,
	}, append(base, opts...)...)
}

func (gw *Gateway) healthy(ctx context.Context) error {
	if gw.Store == nil {
		return nil
	}
	return gw.Store.HealthCheck(ctx)
}

// Close releases providers, the store and MCP sessions.
func (gw *Gateway) Close() error {
	var errs []error
	if gw.mcp != nil {
		errs = append(errs, gw.mcp.Close())
	}
	// The engine closes the store it was given.
	if gw.Engine != nil {
		errs = append(errs, gw.Engine.Close())
	} else if gw.Store != nil {
		errs = append(errs, gw.Store.Close())
	}
	return errors.Join(errs...)
}

// executors returns the built-in functions and MCP servers, each behind
// the approval gate.
func (gw *Gateway) executors(ctx context.Context) ([]tools.Executor, error) {
	cfg := gw.Config
	var execs []tools.Executor
	if cfg.Engine.BuiltinTools {
		fns := registry.New()
		fns.Register(registry.Builtin(nil))
		execs = append(execs, tools.NewGatedExecutor(fns, gw.Gate, cfg.Engine.ExemptTools...))
	}
	if len(cfg.MCP.Servers) > 0 {
		ex, err := mcp.Dial(ctx, cfg.MCP)
		if err != nil {
			// Unreachable servers are skipped; the rest stay usable.
			slog.Warn("some MCP servers are unavailable", "error", err)
		}
		gw.mcp = ex
		execs = append(execs, tools.NewGatedExecutor(ex, gw.Gate, cfg.Engine.ExemptTools...))
	}
	return execs, nil
}

// NewRegistry creates one adapter per provider entry.
func NewRegistry(entries []config.ProviderConfig) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	for _, pc := range entries {
		p, err := NewProvider(pc)
		if err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("provider %q: %w", pc.InstanceName(), err)
		}
		if err := reg.Register(p); err != nil {
			_ = reg.Close()
			return nil, err
		}
	}
	return reg, nil
}

// NewProvider creates the adapter selected by pc.Type.
func NewProvider(pc config.ProviderConfig) (provider.Provider, error) {
	cfg := provider.Config{
		Name:         pc.Name,
		BaseURL:      pc.BaseURL,
		APIKey:       pc.APIKey,
		Timeout:      pc.Timeout,
		Headers:      pc.Headers,
		ModelMapping: pc.Models,
	}
	switch pc.Type {
	case "openai":
		return openai.New(cfg)
	case "anthropic":
		return anthropic.New(cfg)
	case "gemini":
		return gemini.New(cfg)
	case "elevenlabs":
		return elevenlabs.New(cfg)
	case "ollama":
		return ollama.New(cfg)
	case "openrouter":
		return openrouter.New(cfg)
	case "openai-compatible":
		return openaicompat.New(cfg)
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}

// OpenStore returns the configured snapshot store, or nil for "none".
func OpenStore(ctx context.Context, sc config.StorageConfig) (storage.Store, error) {
	switch sc.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return memory.New(sc.MaxSize), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            sc.Postgres.DSN,
			MaxConns:       sc.Postgres.MaxConns,
			MigrateOnStart: sc.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", sc.Type)
	}
}

// NewGate builds the approval gate and its responder.
func NewGate(ac config.ApprovalConfig) (*approval.Gate, error) {
	cfg := approval.Config{
		BaseTimeout:    ac.BaseTimeout,
		RetryIncrement: ac.RetryIncrement,
		MaxRetries:     ac.MaxRetries,
		Defaults:       make(map[string]approval.Action, len(ac.Defaults)),
	}
	for tool, s := range ac.Defaults {
		a, err := approval.ParseAction(s)
		if err != nil {
			return nil, fmt.Errorf("approval default for %q: %w", tool, err)
		}
		cfg.Defaults[tool] = a
	}

	var opts []approval.Option
	switch ac.Responder {
	case "", "http":
		// Decisions arrive through POST /v1/approvals/{id}.
	case "auto_approve":
		opts = append(opts, approval.WithResponder(approval.AutoApprove{}))
	case "auto_deny":
		opts = append(opts, approval.WithResponder(approval.AutoDeny{}))
	default:
		return nil, fmt.Errorf("unknown approval responder %q", ac.Responder)
	}
	return approval.NewGate(cfg, opts...), nil
}

// NewAuthChain builds the authenticator chain. API keys are honored for
// every type when configured, so a JWT deployment can still hand out
// static keys to services.
func NewAuthChain(ac config.AuthConfig) (*auth.Chain, error) {
	chain := &auth.Chain{Default: auth.No}
	if len(ac.APIKeys) > 0 {
		keys := make([]apikey.Key, 0, len(ac.APIKeys))
		for _, k := range ac.APIKeys {
			id := auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier}
			if k.TenantID != "" {
				id.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			keys = append(keys, apikey.Key{Key: k.Key, Identity: id})
		}
		chain.Authenticators = append(chain.Authenticators, apikey.New(keys))
	}

	switch ac.Type {
	case "", "none":
		chain.Default = auth.Yes
	case "apikey":
	case "jwt":
		chain.Authenticators = append(chain.Authenticators, jwt.New(jwt.Config{
			Issuer:      ac.JWT.Issuer,
			Audience:    ac.JWT.Audience,
			JWKSURL:     ac.JWT.JWKSURL,
			UserClaim:   ac.JWT.UserClaim,
			TenantClaim: ac.JWT.TenantClaim,
			ScopesClaim: ac.JWT.ScopesClaim,
		}))
	default:
		return nil, fmt.Errorf("unknown auth type %q", ac.Type)
	}
	return chain, nil
}

// NewRateLimiter returns nil when rate limiting is off.
func NewRateLimiter(rc config.RateLimitConfig) auth.RateLimiter {
	if rc.RequestsPerMinute <= 0 && len(rc.Tiers) == 0 {
		return nil
	}
	tiers := make(map[string]auth.TierConfig, len(rc.Tiers))
	for name, rpm := range rc.Tiers {
		tiers[name] = auth.TierConfig{RequestsPerMinute: rpm, Burst: rc.Burst}
	}
	return auth.NewTokenBucketLimiter(tiers, auth.TierConfig{RequestsPerMinute: rc.RequestsPerMinute, Burst: rc.Burst})
}
