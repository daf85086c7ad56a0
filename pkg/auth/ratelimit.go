package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether a caller may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds rate limit settings for a service tier.
type TierConfig struct {
	RequestsPerMinute int
	// Burst defaults to RequestsPerMinute/10, at least 1.
	Burst int
}

func (t TierConfig) limiter() *rate.Limiter {
	burst := t.Burst
	if burst <= 0 {
		burst = max(t.RequestsPerMinute/10, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(t.RequestsPerMinute)), burst)
}

// TokenBucketLimiter keeps one token bucket per subject and tier.
// Buckets idle for longer than the idle window are dropped.
type TokenBucketLimiter struct {
	tiers    map[string]TierConfig
	fallback TierConfig
	idle     time.Duration
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	swept   time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewTokenBucketLimiter creates a limiter. Callers whose tier is not in
// tiers get fallback. A tier with zero requests per minute is unlimited.
func NewTokenBucketLimiter(tiers map[string]TierConfig, fallback TierConfig) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		tiers:    tiers,
		fallback: fallback,
		idle:     10 * time.Minute,
		now:      time.Now,
		buckets:  make(map[string]*bucket),
	}
}

// Allow implements RateLimiter.
func (l *TokenBucketLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.ServiceTier
	if tier == "" {
		tier = "default"
	}
	tc, ok := l.tiers[tier]
	if !ok {
		tc = l.fallback
	}
	if tc.RequestsPerMinute <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: tc.limiter()}
		l.buckets[key] = b
	}
	b.seen = now
	if !b.lim.AllowN(now, 1) {
		return ErrTooManyRequests
	}
	return nil
}

func (l *TokenBucketLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.idle {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.idle {
			delete(l.buckets, k)
		}
	}
	l.swept = now
}
