// Package cache holds provider catalog results for a bounded time.
//
// A Cache is an explicit object owned by the engine, keyed by tenant,
// provider, resource and the canonical shape of the query. Entries expire
// after the TTL and are dropped early when a mutation goes through the
// engine. Concurrent misses for the same key share one load.
//
// When a storage.Store is attached, loaded values are written through as
// JSON snapshots and a cold cache reads them back while they are still
// within the TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/observability"
	"github.com/rhuss/unigen/pkg/query"
	"github.com/rhuss/unigen/pkg/storage"
)

// DefaultTTL is the catalog lifetime used when configuration omits one.
const DefaultTTL = 5 * time.Minute

// Key identifies one cached result.
type Key struct {
	Tenant   string
	Provider string
	Resource string
	// Shape is query.Shape of the request, or the element id for
	// single-item lookups.
	Shape string
}

// NewKey builds a key for a listing, taking the tenant from ctx.
func NewKey(ctx context.Context, provider, resource string, q query.Query) Key {
	return Key{
		Tenant:   storage.GetTenant(ctx),
		Provider: provider,
		Resource: resource,
		Shape:    query.Shape(q),
	}
}

// ItemKey builds a key for a single catalog element.
func ItemKey(ctx context.Context, provider, resource, id string) Key {
	return Key{
		Tenant:   storage.GetTenant(ctx),
		Provider: provider,
		Resource: resource,
		Shape:    "id=" + id,
	}
}

// String renders the key as used for snapshots and singleflight.
func (k Key) String() string {
	return strings.Join([]string{k.Provider, k.Resource, k.Shape}, "|")
}

func (k Key) flightKey() string {
	return k.Tenant + "\x00" + k.String()
}

// Options configures a Cache.
type Options struct {
	// TTL bounds entry lifetime. Zero disables caching: every lookup
	// goes to the loader.
	TTL time.Duration
	// Store optionally persists loaded values.
	Store storage.Store
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Invalidator drops cached results of a provider. Every Cache is one.
type Invalidator interface {
	InvalidateProvider(ctx context.Context, provider string) int
}

type item[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cache is a TTL cache for one resource type.
type Cache[T any] struct {
	resource string
	ttl      time.Duration
	store    storage.Store
	now      func() time.Time

	mu      sync.RWMutex
	entries map[Key]item[T]
	// gens counts invalidations per provider so a load that started
	// before one does not store its now stale result.
	gens map[string]uint64
	// invalidated records the last invalidation per provider. Snapshots
	// fetched at or before it are not read back.
	invalidated map[string]time.Time
	group       singleflight.Group
}

// New creates a cache for values of one resource kind, such as "models".
// The resource name labels metrics.
func New[T any](resource string, opts Options) *Cache[T] {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{
		resource: resource,
		ttl:      opts.TTL,
		store:    opts.Store,
		now:      now,
		entries:  make(map[Key]item[T]),
		gens:     make(map[string]uint64),

		invalidated: make(map[string]time.Time),
	}
}

// TTL returns the configured lifetime.
func (c *Cache[T]) TTL() time.Duration { return c.ttl }

// Get returns a live entry, warming from the store on a memory miss.
func (c *Cache[T]) Get(ctx context.Context, key Key) (T, bool) {
	var zero T
	if c.ttl <= 0 {
		return zero, false
	}
	if v, ok := c.lookup(key); ok {
		return v, true
	}
	if v, ok := c.warm(ctx, key); ok {
		return v, true
	}
	return zero, false
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Concurrent callers missing on the same key wait for a single load. The
// load runs detached from the first caller's cancellation so the other
// waiters are not failed by it; each caller still returns as soon as its
// own ctx is done.
func (c *Cache[T]) GetOrLoad(ctx context.Context, key Key, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if c.ttl <= 0 {
		observability.CacheLookupsTotal.WithLabelValues(c.resource, "bypass").Inc()
		return load(ctx)
	}
	if v, ok := c.lookup(key); ok {
		observability.CacheLookupsTotal.WithLabelValues(c.resource, "hit").Inc()
		return v, nil
	}
	if v, ok := c.warm(ctx, key); ok {
		observability.CacheLookupsTotal.WithLabelValues(c.resource, "warm").Inc()
		return v, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.flightKey(), func() (any, error) {
		// Another flight may have filled the entry while this one queued.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		gen := c.generation(key.Provider)
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if c.generation(key.Provider) == gen {
			c.put(loadCtx, key, v)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		result := "miss"
		if res.Shared {
			result = "shared"
		}
		observability.CacheLookupsTotal.WithLabelValues(c.resource, result).Inc()
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Put stores a value directly.
func (c *Cache[T]) Put(ctx context.Context, key Key, v T) {
	if c.ttl <= 0 {
		return
	}
	c.put(ctx, key, v)
}

// Invalidate drops one entry.
func (c *Cache[T]) Invalidate(ctx context.Context, key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Delete(storage.SetTenant(ctx, key.Tenant), key.String()); err != nil && !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("cache snapshot delete failed", "key", key.String(), "error", err)
		}
	}
}

// InvalidateProvider drops every entry and snapshot of a provider for all
// tenants. It returns the number of memory entries removed.
func (c *Cache[T]) InvalidateProvider(ctx context.Context, provider string) int {
	c.mu.Lock()
	c.gens[provider]++
	c.invalidated[provider] = c.now()
	n := 0
	for k := range c.entries {
		if k.Provider == provider {
			delete(c.entries, k)
			n++
		}
	}
	c.mu.Unlock()

	if c.store != nil {
		if _, err := c.store.DeleteProvider(ctx, provider); err != nil {
			slog.Warn("cache snapshot purge failed", "provider", provider, "error", err)
		}
	}
	observability.CacheInvalidationsTotal.WithLabelValues(provider).Inc()
	debug.Log("cache", "provider invalidated", "resource", c.resource, "provider", provider, "entries", n)
	return n
}

// Len returns the number of live entries.
func (c *Cache[T]) Len() int {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, it := range c.entries {
		if c.fresh(it, now) {
			n++
		}
	}
	return n
}

// Purge removes expired entries and returns how many were removed.
func (c *Cache[T]) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, it := range c.entries {
		if !c.fresh(it, now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *Cache[T]) generation(provider string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[provider]
}

func (c *Cache[T]) fresh(it item[T], now time.Time) bool {
	return now.Sub(it.fetchedAt) < c.ttl
}

func (c *Cache[T]) lookup(key Key) (T, bool) {
	c.mu.RLock()
	it, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.fresh(it, c.now()) {
		var zero T
		return zero, false
	}
	return it.value, true
}

func (c *Cache[T]) put(ctx context.Context, key Key, v T) {
	now := c.now()
	c.mu.Lock()
	c.entries[key] = item[T]{value: v, fetchedAt: now}
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache snapshot encode failed", "key", key.String(), "error", err)
		return
	}
	err = c.store.Save(storage.SetTenant(ctx, key.Tenant), storage.Snapshot{
		Key:       key.String(),
		Provider:  key.Provider,
		Resource:  key.Resource,
		Data:      data,
		FetchedAt: now,
	})
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		slog.Warn("cache snapshot save failed", "key", key.String(), "error", err)
	}
}

// warm reads a snapshot back into memory when it is still fresh.
func (c *Cache[T]) warm(ctx context.Context, key Key) (T, bool) {
	var zero T
	if c.store == nil {
		return zero, false
	}
	snap, err := c.store.Get(storage.SetTenant(ctx, key.Tenant), key.String())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			debug.Log("cache", "snapshot read failed", "key", key.String(), "error", err)
		}
		return zero, false
	}
	it := item[T]{fetchedAt: snap.FetchedAt}
	if !c.fresh(it, c.now()) {
		return zero, false
	}
	c.mu.RLock()
	cutoff, seen := c.invalidated[key.Provider]
	c.mu.RUnlock()
	if seen && !snap.FetchedAt.After(cutoff) {
		debug.Log("cache", "snapshot predates invalidation", "key", key.String())
		return zero, false
	}
	if err := json.Unmarshal(snap.Data, &it.value); err != nil {
		debug.Log("cache", "snapshot decode failed", "key", key.String(), "error", err)
		return zero, false
	}
	c.mu.Lock()
	c.entries[key] = it
	c.mu.Unlock()
	return it.value, true
}
