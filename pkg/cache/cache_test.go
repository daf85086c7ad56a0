package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/query"
	"github.com/rhuss/unigen/pkg/storage"
	"github.com/rhuss/unigen/pkg/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type page = api.Page[api.ModelData]

func counter(n *atomic.Int32, ids ...string) func(context.Context) (page, error) {
	return func(context.Context) (page, error) {
		n.Add(1)
		data := make([]api.ModelData, len(ids))
		for i, id := range ids {
			data[i] = api.ModelData{ID: id, Provider: "openai"}
		}
		return api.NewPage(data, api.ModelID), nil
	}
}

func TestGetOrLoadHitAndExpiry(t *testing.T) {
	clock := newClock()
	c := New[page]("models", Options{TTL: time.Minute, Now: clock.Now})
	ctx := context.Background()
	key := NewKey(ctx, "openai", "models", query.CursorQuery{Limit: 2})

	var loads atomic.Int32
	load := counter(&loads, "gpt-4o", "gpt-4o-mini")

	for range 3 {
		p, err := c.GetOrLoad(ctx, key, load)
		if err != nil {
			t.Fatal(err)
		}
		if len(p.Data) != 2 {
			t.Fatalf("page = %+v", p)
		}
	}
	if loads.Load() != 1 {
		t.Errorf("loads = %d, want 1", loads.Load())
	}

	clock.Advance(time.Minute)
	if _, ok := c.Get(ctx, key); ok {
		t.Error("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d", c.Len())
	}
	if _, err := c.GetOrLoad(ctx, key, load); err != nil {
		t.Fatal(err)
	}
	if loads.Load() != 2 {
		t.Errorf("loads after expiry = %d, want 2", loads.Load())
	}
	if c.Purge() != 0 {
		t.Error("fresh entry purged")
	}
	clock.Advance(2 * time.Minute)
	if c.Purge() != 1 {
		t.Error("expired entry not purged")
	}
}

func TestZeroTTLBypasses(t *testing.T) {
	c := New[page]("models", Options{})
	ctx := context.Background()
	key := NewKey(ctx, "openai", "models", nil)

	var loads atomic.Int32
	for range 2 {
		if _, err := c.GetOrLoad(ctx, key, counter(&loads, "m")); err != nil {
			t.Fatal(err)
		}
	}
	if loads.Load() != 2 || c.Len() != 0 {
		t.Errorf("loads = %d len = %d", loads.Load(), c.Len())
	}
}

func TestKeysSeparateShapesAndTenants(t *testing.T) {
	c := New[page]("models", Options{TTL: time.Minute})
	ctx := context.Background()
	tenantCtx := storage.SetTenant(ctx, "acme")

	var loads atomic.Int32
	keys := []Key{
		NewKey(ctx, "openai", "models", query.CursorQuery{Limit: 2}),
		NewKey(ctx, "openai", "models", query.CursorQuery{Limit: 2, After: "m2"}),
		NewKey(tenantCtx, "openai", "models", query.CursorQuery{Limit: 2}),
		NewKey(ctx, "anthropic", "models", query.CursorQuery{Limit: 2}),
		ItemKey(ctx, "openai", "models", "m2"),
	}
	for _, k := range keys {
		if _, err := c.GetOrLoad(ctx, k, counter(&loads, "m")); err != nil {
			t.Fatal(err)
		}
	}
	if loads.Load() != int32(len(keys)) || c.Len() != len(keys) {
		t.Errorf("loads = %d len = %d", loads.Load(), c.Len())
	}
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	c := New[page]("models", Options{TTL: time.Minute})
	ctx := context.Background()
	key := NewKey(ctx, "openai", "models", nil)

	release := make(chan struct{})
	var loads atomic.Int32
	load := func(context.Context) (page, error) {
		loads.Add(1)
		<-release
		return api.NewPage([]api.ModelData{{ID: "m"}}, api.ModelID), nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrLoad(ctx, key, load)
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if loads.Load() != 1 {
		t.Errorf("loads = %d, want 1", loads.Load())
	}
}

func TestLoadErrorNotCached(t *testing.T) {
	c := New[page]("models", Options{TTL: time.Minute})
	ctx := context.Background()
	key := NewKey(ctx, "openai", "models", nil)

	boom := api.NewTransportError("openai", "list_models", 503, "unavailable")
	_, err := c.GetOrLoad(ctx, key, func(context.Context) (page, error) { return page{}, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if c.Len() != 0 {
		t.Error("failed load was cached")
	}
}

func TestCallerCancellationReturnsEarly(t *testing.T) {
	c := New[page]("models", Options{TTL: time.Minute})
	key := NewKey(context.Background(), "openai", "models", nil)

	release := make(chan struct{})
	defer close(release)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.GetOrLoad(ctx, key, func(context.Context) (page, error) {
		<-release
		return page{}, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	c := New[page]("models", Options{TTL: time.Minute})
	ctx := context.Background()
	a := NewKey(ctx, "openai", "models", nil)
	b := NewKey(ctx, "openai", "models", query.CursorQuery{Limit: 5})
	other := NewKey(ctx, "gemini", "models", nil)

	var loads atomic.Int32
	for _, k := range []Key{a, b, other} {
		_, _ = c.GetOrLoad(ctx, k, counter(&loads, "m"))
	}

	c.Invalidate(ctx, a)
	if _, ok := c.Get(ctx, a); ok {
		t.Error("a still cached")
	}
	if n := c.InvalidateProvider(ctx, "openai"); n != 1 {
		t.Errorf("InvalidateProvider removed %d, want 1", n)
	}
	if _, ok := c.Get(ctx, other); !ok {
		t.Error("other provider's entry was dropped")
	}
}

func TestInvalidationDuringLoadDiscardsResult(t *testing.T) {
	c := New[page]("models", Options{TTL: time.Minute})
	ctx := context.Background()
	key := NewKey(ctx, "openai", "models", nil)

	_, err := c.GetOrLoad(ctx, key, func(context.Context) (page, error) {
		c.InvalidateProvider(ctx, "openai")
		return api.NewPage([]api.ModelData{{ID: "stale"}}, api.ModelID), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, key); ok {
		t.Error("result loaded across an invalidation was cached")
	}
}

func TestWarmFromStore(t *testing.T) {
	clock := newClock()
	store := memory.New(0)
	ctx := storage.SetTenant(context.Background(), "acme")
	key := NewKey(ctx, "openai", "models", query.CursorQuery{Limit: 2})

	first := New[page]("models", Options{TTL: time.Minute, Store: store, Now: clock.Now})
	var loads atomic.Int32
	if _, err := first.GetOrLoad(ctx, key, counter(&loads, "gpt-4o", "o3")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, key.String()); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	// A new cache sharing the store starts warm.
	clock.Advance(30 * time.Second)
	second := New[page]("models", Options{TTL: time.Minute, Store: store, Now: clock.Now})
	p, err := second.GetOrLoad(ctx, key, counter(&loads, "unused"))
	if err != nil {
		t.Fatal(err)
	}
	if loads.Load() != 1 || len(p.Data) != 2 || p.Data[1].ID != "o3" {
		t.Errorf("loads = %d page = %+v", loads.Load(), p)
	}

	// Past the TTL the snapshot is ignored.
	clock.Advance(time.Minute)
	third := New[page]("models", Options{TTL: time.Minute, Store: store, Now: clock.Now})
	if _, ok := third.Get(ctx, key); ok {
		t.Error("expired snapshot used")
	}

	third.InvalidateProvider(ctx, "openai")
	if store.Len() != 0 {
		t.Errorf("snapshots left after invalidation: %d", store.Len())
	}
}

func TestInvalidationReachesOtherTenants(t *testing.T) {
	clock := newClock()
	store := memory.New(0)
	c := New[page]("models", Options{TTL: time.Minute, Store: store, Now: clock.Now})
	ctxA := storage.SetTenant(context.Background(), "tenant-a")
	ctxB := storage.SetTenant(context.Background(), "tenant-b")
	keyB := NewKey(ctxB, "openai", "models", nil)

	var loads atomic.Int32
	if _, err := c.GetOrLoad(ctxB, keyB, counter(&loads, "gpt-4o", "deleted-ft")); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Second)
	c.InvalidateProvider(ctxA, "openai")
	if _, err := store.Get(ctxB, keyB.String()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("tenant B snapshot survived invalidation: %v", err)
	}

	p, err := c.GetOrLoad(ctxB, keyB, counter(&loads, "gpt-4o"))
	if err != nil {
		t.Fatal(err)
	}
	if loads.Load() != 2 || len(p.Data) != 1 {
		t.Errorf("loads = %d page = %+v", loads.Load(), p.Data)
	}
}

func TestWarmSkipsSnapshotsOlderThanInvalidation(t *testing.T) {
	clock := newClock()
	store := memory.New(0)
	ctx := storage.SetTenant(context.Background(), "acme")
	key := NewKey(ctx, "openai", "models", nil)
	c := New[page]("models", Options{TTL: time.Minute, Store: store, Now: clock.Now})

	// A snapshot written by another process before the invalidation.
	data := []byte(`{"object":"list","data":[{"id":"deleted-ft","provider":"openai"}]}`)
	c.InvalidateProvider(ctx, "openai")
	if err := store.Save(ctx, storage.Snapshot{
		Key: key.String(), Provider: "openai", Resource: "models",
		Data: data, FetchedAt: clock.Now().Add(-time.Second),
	}); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get(ctx, key); ok {
		t.Error("snapshot older than the invalidation was used")
	}
}
