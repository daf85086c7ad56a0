// Package memory provides an in-memory storage.Store for tests and
// single-process deployments. Snapshots are lost when the process exits.
// Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"slices"
	"sync"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/storage"
)

// entry holds a stored snapshot and its LRU position.
type entry struct {
	snap    storage.Snapshot
	lruElem *list.Element
}

// Store is an in-memory snapshot store with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry // keyed by tenant + key
	lruList *list.List        // front = most recently used
	maxSize int               // 0 = unlimited
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. Otherwise the least recently used snapshot is evicted
// when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

func scopedKey(tenant, key string) string {
	return tenant + "\x00" + key
}

// Save inserts or replaces a snapshot.
func (s *Store) Save(ctx context.Context, snap storage.Snapshot) error {
	snap.Tenant = storage.GetTenant(ctx)
	k := scopedKey(snap.Tenant, snap.Key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[k]; ok {
		if snap.FetchedAt.Before(e.snap.FetchedAt) {
			return storage.ErrConflict
		}
		e.snap = snap
		s.lruList.MoveToFront(e.lruElem)
		return nil
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}
	s.entries[k] = &entry{snap: snap, lruElem: s.lruList.PushFront(k)}
	return nil
}

// Get retrieves a snapshot by key and marks it recently used.
func (s *Store) Get(ctx context.Context, key string) (storage.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[scopedKey(storage.GetTenant(ctx), key)]
	if !ok {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)
	return e.snap, nil
}

// List returns the tenant's snapshots, optionally filtered by provider,
// with cursor pagination over snapshot keys.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*api.Page[storage.Snapshot], error) {
	tenant := storage.GetTenant(ctx)

	s.mu.Lock()
	var matches []storage.Snapshot
	for _, e := range s.entries {
		if e.snap.Tenant != tenant {
			continue
		}
		if opts.Provider != "" && e.snap.Provider != opts.Provider {
			continue
		}
		matches = append(matches, e.snap)
	}
	s.mu.Unlock()

	asc := opts.Order == "asc"
	slices.SortFunc(matches, func(a, b storage.Snapshot) int {
		c := a.FetchedAt.Compare(b.FetchedAt)
		if c == 0 {
			c = compareStrings(a.Key, b.Key)
		}
		if asc {
			return c
		}
		return -c
	})

	// Unknown cursors give an empty page.
	switch {
	case opts.After != "":
		if idx := indexOfKey(matches, opts.After); idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	case opts.Before != "":
		if idx := indexOfKey(matches, opts.Before); idx > 0 {
			matches = matches[:idx]
		} else {
			matches = nil
		}
	}

	limit := storage.ClampLimit(opts.Limit)
	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}

	page := api.NewPage(matches, func(sn storage.Snapshot) string { return sn.Key })
	page.HasMore = hasMore
	page.Limit = limit
	page.Clamped = opts.Limit > 100
	return &page, nil
}

func indexOfKey(snaps []storage.Snapshot, key string) int {
	return slices.IndexFunc(snaps, func(sn storage.Snapshot) bool { return sn.Key == key })
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Delete removes a snapshot.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := scopedKey(storage.GetTenant(ctx), key)
	e, ok := s.entries[k]
	if !ok {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, k)
	return nil
}

// DeleteProvider removes the provider's snapshots of every tenant.
func (s *Store) DeleteProvider(_ context.Context, provider string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, e := range s.entries {
		if e.snap.Provider == provider {
			s.lruList.Remove(e.lruElem)
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored snapshots across tenants.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	s.lruList.Remove(back)
	delete(s.entries, back.Value.(string))
}
