package config

import (
	"errors"
	"fmt"
	"slices"
)

// ProviderTypes lists the adapter types a provider entry may name.
var ProviderTypes = []string{"openai", "anthropic", "gemini", "elevenlabs", "ollama", "openrouter", "openai-compatible"}

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if !slices.Contains(ProviderTypes, p.Type) {
			errs = append(errs, fmt.Errorf("providers[%d].type must be one of %v, got %q", i, ProviderTypes, p.Type))
		}
		if p.Type == "openai-compatible" && p.BaseURL == "" {
			errs = append(errs, fmt.Errorf("providers[%d].base_url is required for openai-compatible", i))
		}
		if p.Timeout < 0 {
			errs = append(errs, fmt.Errorf("providers[%d].timeout must not be negative", i))
		}
		name := p.InstanceName()
		if names[name] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate name %q", i, name))
		}
		names[name] = true
	}

	if err := c.Engine.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Approval.BaseTimeout <= 0 {
		errs = append(errs, fmt.Errorf("approval.base_timeout must be positive"))
	}
	if c.Approval.MaxRetries < 0 || c.Approval.RetryIncrement < 0 {
		errs = append(errs, fmt.Errorf("approval.max_retries and approval.retry_increment must not be negative"))
	}
	for tool, action := range c.Approval.Defaults {
		if action != "approve" && action != "deny" {
			errs = append(errs, fmt.Errorf("approval.defaults[%s] must be \"approve\" or \"deny\", got %q", tool, action))
		}
	}
	switch c.Approval.Responder {
	case "http", "auto_approve", "auto_deny":
	default:
		errs = append(errs, fmt.Errorf("approval.responder must be \"http\", \"auto_approve\" or \"auto_deny\", got %q", c.Approval.Responder))
	}

	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must not be negative"))
	}

	switch c.Storage.Type {
	case "none", "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" && c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
		errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
	}

	switch c.Auth.Type {
	case "none", "apikey":
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.Type == "apikey" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
	}
	if c.Auth.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.requests_per_minute must not be negative"))
	}

	if err := c.MCP.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
