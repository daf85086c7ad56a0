package engine

import (
	"errors"
	"time"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/cache"
	"github.com/rhuss/unigen/pkg/storage"
	"github.com/rhuss/unigen/pkg/tools"
)

// Config holds configuration for the engine.
type Config struct {
	// Retry governs retries of retryable provider failures.
	Retry RetryPolicy `yaml:"retry"`

	// CacheTTL is the lifetime of cached catalog results. Zero disables
	// caching.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// MaxToolTurns bounds the tool loop. Zero or negative means 10.
	MaxToolTurns int `yaml:"max_tool_turns"`

	// AllowedTools restricts which tools the loop may execute. Empty
	// allows every tool an executor offers.
	AllowedTools []string `yaml:"allowed_tools"`

	// SequentialTools runs the tool calls of one turn one after another
	// instead of concurrently.
	SequentialTools bool `yaml:"sequential_tools"`

	// Validation bounds generation requests.
	Validation api.ValidationConfig `yaml:"-"`

	// Store persists cache snapshots. Nil keeps the cache in memory only.
	Store storage.Store `yaml:"-"`

	// Executors run tool calls inside the loop. Calls no executor can
	// handle are returned to the caller.
	Executors []tools.Executor `yaml:"-"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Retry:        DefaultRetryPolicy(),
		CacheTTL:     cache.DefaultTTL,
		MaxToolTurns: 10,
		Validation:   api.DefaultValidationConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("engine.cache_ttl must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) maxTurns() int {
	if c.MaxToolTurns <= 0 {
		return 10
	}
	return c.MaxToolTurns
}
