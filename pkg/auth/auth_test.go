package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rhuss/unigen/pkg/storage"
)

// mockAuthn returns a fixed result and counts calls.
type mockAuthn struct {
	result Result
	calls  int
}

func (m *mockAuthn) Authenticate(_ context.Context, _ *http.Request) Result {
	m.calls++
	return m.result
}

func TestChain(t *testing.T) {
	yes := Result{Decision: Yes, Identity: &Identity{Subject: "alice"}}
	no := Result{Decision: No, Err: ErrUnauthenticated}
	abstain := Result{Decision: Abstain}

	tests := []struct {
		name      string
		results   []Result
		fallback  Decision
		want      Decision
		subject   string
		lastCalls int
	}{
		{"first yes stops", []Result{yes, no}, No, Yes, "alice", 0},
		{"first no stops", []Result{no, yes}, Yes, No, "", 0},
		{"abstain continues", []Result{abstain, yes}, No, Yes, "alice", 1},
		{"all abstain default no", []Result{abstain, abstain}, No, No, "", 1},
		{"all abstain default yes", []Result{abstain}, Yes, Yes, "anonymous", 1},
		{"empty chain", nil, Yes, Yes, "anonymous", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mocks []*mockAuthn
			chain := &Chain{Default: tt.fallback}
			for _, r := range tt.results {
				m := &mockAuthn{result: r}
				mocks = append(mocks, m)
				chain.Authenticators = append(chain.Authenticators, m)
			}
			res := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
			if res.Decision != tt.want {
				t.Fatalf("decision = %s, want %s", res.Decision, tt.want)
			}
			if tt.subject != "" && res.Identity.Subject != tt.subject {
				t.Errorf("subject = %q", res.Identity.Subject)
			}
			if res.Decision == No && res.Err == nil {
				t.Error("No without error")
			}
			if len(mocks) > 0 && mocks[len(mocks)-1].calls != tt.lastCalls {
				t.Errorf("last authenticator calls = %d, want %d", mocks[len(mocks)-1].calls, tt.lastCalls)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	var nilID *Identity
	if nilID.TenantID() != "" || nilID.HasScope(ScopeApprove) {
		t.Error("nil identity should have no tenant or scopes")
	}

	open := &Identity{Subject: "k"}
	if !open.HasScope(ScopeCatalogWrite) {
		t.Error("identity without scopes should be unrestricted")
	}

	scoped := &Identity{Subject: "u", Scopes: []string{ScopeApprove}, Metadata: map[string]string{"tenant_id": "t1"}}
	if !scoped.HasScope(ScopeApprove) || scoped.HasScope(ScopeCatalogWrite) {
		t.Errorf("scopes = %v", scoped.Scopes)
	}
	if scoped.TenantID() != "t1" {
		t.Errorf("tenant = %q", scoped.TenantID())
	}

	ctx := WithIdentity(context.Background(), scoped)
	if IdentityFromContext(ctx) != scoped {
		t.Error("identity not round-tripped through context")
	}
	if IdentityFromContext(context.Background()) != nil {
		t.Error("empty context should carry no identity")
	}
	if got := storage.GetTenant(ctx); got != "t1" {
		t.Errorf("tenant in context = %q, want t1", got)
	}
}

func TestTokenBucketLimiter(t *testing.T) {
	l := NewTokenBucketLimiter(
		map[string]TierConfig{
			"premium":   {RequestsPerMinute: 600, Burst: 5},
			"unlimited": {},
		},
		TierConfig{RequestsPerMinute: 60, Burst: 2},
	)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	alice := &Identity{Subject: "alice"}
	for i := range 2 {
		if err := l.Allow(ctx, alice); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := l.Allow(ctx, alice); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("third request err = %v", err)
	}

	// Another subject has its own bucket.
	if err := l.Allow(ctx, &Identity{Subject: "bob"}); err != nil {
		t.Errorf("bob: %v", err)
	}

	// One token per second at 60 rpm.
	now = now.Add(time.Second)
	if err := l.Allow(ctx, alice); err != nil {
		t.Errorf("after refill: %v", err)
	}

	premium := &Identity{Subject: "carol", ServiceTier: "premium"}
	for i := range 5 {
		if err := l.Allow(ctx, premium); err != nil {
			t.Fatalf("premium request %d: %v", i, err)
		}
	}

	free := &Identity{Subject: "dave", ServiceTier: "unlimited"}
	for range 100 {
		if err := l.Allow(ctx, free); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTokenBucketLimiterSweepsIdle(t *testing.T) {
	l := NewTokenBucketLimiter(nil, TierConfig{RequestsPerMinute: 60})
	now := time.Now()
	l.now = func() time.Time { return now }

	_ = l.Allow(context.Background(), &Identity{Subject: "a"})
	now = now.Add(l.idle + time.Second)
	_ = l.Allow(context.Background(), &Identity{Subject: "b"})

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets["a:default"]; ok {
		t.Error("idle bucket was not swept")
	}
	if _, ok := l.buckets["b:default"]; !ok {
		t.Error("active bucket missing")
	}
}
