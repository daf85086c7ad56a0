// Package config provides unified configuration for the unigen gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. .env file (variables already set in the environment win)
//  3. YAML config file (discovered or explicitly specified)
//  4. Settings overrides (UNIGEN_ prefix when read from the environment)
//  5. File reference resolution (_file suffix fields)
//  6. Validation
package config

import (
	"time"

	"github.com/rhuss/unigen/pkg/engine"
	"github.com/rhuss/unigen/pkg/tools/mcp"
)

// Config holds all configuration for the unigen gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     []ProviderConfig    `yaml:"providers"`
	Engine        EngineConfig        `yaml:"engine"`
	Approval      ApprovalConfig      `yaml:"approval"`
	Cache         CacheConfig         `yaml:"cache"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	MCP           mcp.Config          `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 0, streams run long
	// ShutdownTimeout bounds graceful shutdown. Default: 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProviderConfig describes one provider adapter instance.
type ProviderConfig struct {
	// Name registers the instance; defaults to Type.
	Name string `yaml:"name" json:"name"`

	// Type selects the adapter: openai, anthropic, gemini, elevenlabs,
	// ollama, openrouter or openai-compatible.
	Type string `yaml:"type" json:"type"`

	BaseURL    string            `yaml:"base_url" json:"base_url"`
	APIKey     string            `yaml:"api_key" json:"api_key"`
	APIKeyFile string            `yaml:"api_key_file" json:"api_key_file"`
	Timeout    time.Duration     `yaml:"timeout" json:"timeout"`
	Headers    map[string]string `yaml:"headers" json:"headers"`
	Models     map[string]string `yaml:"model_mapping" json:"model_mapping"`
}

// InstanceName returns Name, or Type when unnamed.
func (p ProviderConfig) InstanceName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Type
}

// EngineConfig holds dispatch settings.
type EngineConfig struct {
	Retry           engine.RetryPolicy `yaml:"retry"`
	MaxToolTurns    int                `yaml:"max_tool_turns"` // default: 10
	AllowedTools    []string           `yaml:"allowed_tools"`
	SequentialTools bool               `yaml:"sequential_tools"`
	// BuiltinTools enables the in-process current_time and echo tools.
	BuiltinTools bool `yaml:"builtin_tools"`
	// ExemptTools skip the approval gate.
	ExemptTools []string `yaml:"exempt_tools"`
}

// ApprovalConfig holds the tool approval gate settings.
type ApprovalConfig struct {
	BaseTimeout    time.Duration `yaml:"base_timeout"`    // default: 30s
	RetryIncrement time.Duration `yaml:"retry_increment"` // default: 15s
	MaxRetries     int           `yaml:"max_retries"`     // default: 2
	// Defaults maps tool names to "approve" or "deny" for timed-out
	// requests. Unlisted tools are denied.
	Defaults map[string]string `yaml:"defaults"`
	// Responder is "http" (decisions arrive through the gateway),
	// "auto_approve" or "auto_deny". Default: "http".
	Responder string `yaml:"responder"`
}

// CacheConfig holds catalog cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"` // default: 5m, 0 disables
}

// StorageConfig selects where cache snapshots persist.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "none"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 4
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds bearer token validation settings.
type JWTConfig struct {
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	JWKSURL     string `yaml:"jwks_url"`
	UserClaim   string `yaml:"user_claim"`
	TenantClaim string `yaml:"tenant_claim"`
	ScopesClaim string `yaml:"scopes_claim"`
}

// RateLimitConfig bounds requests per caller.
type RateLimitConfig struct {
	// RequestsPerMinute applies to callers without a configured tier.
	// Zero disables rate limiting.
	RequestsPerMinute int            `yaml:"requests_per_minute"`
	Burst             int            `yaml:"burst"`
	Tiers             map[string]int `yaml:"tiers"` // tier -> requests per minute
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Engine: EngineConfig{
			Retry:        engine.DefaultRetryPolicy(),
			MaxToolTurns: 10,
			BuiltinTools: true,
		},
		Approval: ApprovalConfig{
			BaseTimeout:    30 * time.Second,
			RetryIncrement: 15 * time.Second,
			MaxRetries:     2,
			Responder:      "http",
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Type:    "none",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
