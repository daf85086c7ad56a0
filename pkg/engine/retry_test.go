package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rhuss/unigen/pkg/api"
)

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 3}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 300 * time.Millisecond},
		{3, 900 * time.Millisecond},
		{4, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.n); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestRetryPolicyJitterStaysInRange(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, InitialBackoff: 100 * time.Millisecond, Multiplier: 1, Jitter: 0.2}
	for range 100 {
		d := p.jittered(1)
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("jittered delay %v outside [80ms, 120ms]", d)
		}
	}
}

func TestRetryPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"default", DefaultRetryPolicy(), false},
		{"single attempt", RetryPolicy{MaxAttempts: 1}, false},
		{"zero attempts", RetryPolicy{}, true},
		{"negative backoff", RetryPolicy{MaxAttempts: 2, InitialBackoff: -time.Second}, true},
		{"initial above max", RetryPolicy{MaxAttempts: 2, InitialBackoff: 2 * time.Second, MaxBackoff: time.Second}, true},
		{"shrinking multiplier", RetryPolicy{MaxAttempts: 2, Multiplier: 0.5}, true},
		{"jitter above one", RetryPolicy{MaxAttempts: 2, Jitter: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.policy.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry(ctx, p, "local", "get_model", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, api.NewTransportError("local", "get_model", 502, "bad gateway")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("err = %v calls = %d", err, calls)
	}
}

func TestRetryRateLimitOnlyFromProvider(t *testing.T) {
	p := fastRetry()
	calls := 0
	_, err := retry(context.Background(), p, "local", "list_models", func(context.Context) (int, error) {
		calls++
		return 0, api.NewTooManyRequestsError("slow down")
	})
	if err == nil || calls != 1 {
		t.Errorf("gateway rate limit retried: calls = %d", calls)
	}

	calls = 0
	_, err = retry(context.Background(), p, "local", "list_models", func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, api.MapHTTPStatus("local", "list_models", 429, "")
		}
		return 7, nil
	})
	if err != nil || calls != 2 {
		t.Errorf("err = %v calls = %d", err, calls)
	}
}
