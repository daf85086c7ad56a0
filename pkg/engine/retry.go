package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/observability"
)

// RetryPolicy bounds retries of retryable provider failures. Only errors
// for which api.IsRetryable holds are retried.
type RetryPolicy struct {
	// MaxAttempts counts the first call. 1 disables retries.
	MaxAttempts int `yaml:"max_attempts"`

	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	// Multiplier grows the backoff after every attempt.
	Multiplier float64 `yaml:"multiplier"`

	// Jitter spreads each delay uniformly by this fraction in both
	// directions. 0.2 yields 80% to 120% of the computed delay.
	Jitter float64 `yaml:"jitter"`
}

// DefaultRetryPolicy returns three attempts starting at 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
		Jitter:         0.2,
	}
}

// Validate checks the policy.
func (p RetryPolicy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, errors.New("engine.retry.max_attempts must be at least 1"))
	}
	if p.InitialBackoff < 0 || p.MaxBackoff < 0 {
		errs = append(errs, errors.New("engine.retry backoff durations must not be negative"))
	}
	if p.MaxBackoff > 0 && p.InitialBackoff > p.MaxBackoff {
		errs = append(errs, errors.New("engine.retry.initial_backoff exceeds max_backoff"))
	}
	if p.Multiplier != 0 && p.Multiplier < 1 {
		errs = append(errs, errors.New("engine.retry.multiplier must be at least 1"))
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		errs = append(errs, errors.New("engine.retry.jitter must be between 0 and 1"))
	}
	return errors.Join(errs...)
}

// Delay returns the wait before retry number n (1-based), without jitter.
func (p RetryPolicy) Delay(n int) time.Duration {
	if p.InitialBackoff <= 0 || n < 1 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(n-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	return time.Duration(d)
}

func (p RetryPolicy) jittered(n int) time.Duration {
	d := p.Delay(n)
	if p.Jitter <= 0 || d == 0 {
		return d
	}
	f := 1 + p.Jitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * f)
}

// retry calls fn until it succeeds, fails with a final error, runs out
// of attempts, or ctx ends. The last error is returned unchanged.
func retry[T any](ctx context.Context, p RetryPolicy, providerName, op string, fn func(context.Context) (T, error)) (T, error) {
	attempts := max(p.MaxAttempts, 1)

	var (
		v   T
		err error
	)
	for attempt := 1; ; attempt++ {
		v, err = fn(ctx)
		if err == nil || !api.IsRetryable(err) || attempt >= attempts {
			return v, err
		}

		delay := p.jittered(attempt)
		slog.Warn("retrying provider call",
			"provider", providerName,
			"operation", op,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		observability.ProviderRetriesTotal.WithLabelValues(providerName, op).Inc()

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			var zero T
			return zero, ctx.Err()
		case <-t.C:
		}
	}
}
