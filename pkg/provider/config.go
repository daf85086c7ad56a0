package provider

import (
	"errors"
	"time"
)

// DefaultTimeout bounds non-streaming provider requests.
const DefaultTimeout = 120 * time.Second

// Config holds the settings shared by every HTTP provider adapter.
type Config struct {
	// Name overrides the provider identifier, so two instances of the same
	// adapter (e.g. two OpenAI-compatible endpoints) can be registered.
	Name string

	// BaseURL is the provider endpoint. Adapters supply their public default.
	BaseURL string

	// APIKey authenticates against the provider. Optional for local backends.
	APIKey string

	// Timeout for individual non-streaming requests. Defaults to 120s.
	// Streams are bounded by their context instead.
	Timeout time.Duration

	// Headers are added to every request.
	Headers map[string]string

	// ModelMapping maps requested model names to provider model identifiers.
	// Models that are not in the map pass through unchanged.
	ModelMapping map[string]string
}

// WithDefaults fills empty fields with the adapter's defaults.
func (c Config) WithDefaults(name, baseURL string) Config {
	if c.Name == "" {
		c.Name = name
	}
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Validate checks the settings every adapter needs.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base URL is required")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// MapModel applies ModelMapping to model.
func (c Config) MapModel(model string) string {
	if mapped, ok := c.ModelMapping[model]; ok {
		return mapped
	}
	return model
}
