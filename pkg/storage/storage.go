package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rhuss/unigen/pkg/api"
)

// Snapshot is one persisted catalog page.
type Snapshot struct {
	Key       string          `json:"key"`
	Tenant    string          `json:"tenant,omitempty"`
	Provider  string          `json:"provider"`
	Resource  string          `json:"resource"`
	Data      json.RawMessage `json:"data"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// ListOptions selects snapshots for List. Snapshots are ordered by
// FetchedAt, newest first unless Order is "asc", and paged by key.
type ListOptions struct {
	Provider string
	Limit    int
	After    string
	Before   string
	Order    string
}

// Store persists snapshots. Every method except DeleteProvider is scoped
// to the tenant in ctx when one is set.
type Store interface {
	// Save inserts or replaces the snapshot with the same key. It returns
	// ErrConflict when the stored snapshot was fetched later.
	Save(ctx context.Context, s Snapshot) error

	// Get returns ErrNotFound when the key is unknown.
	Get(ctx context.Context, key string) (Snapshot, error)

	List(ctx context.Context, opts ListOptions) (*api.Page[Snapshot], error)

	Delete(ctx context.Context, key string) error

	// DeleteProvider removes every snapshot of a provider across all
	// tenants and returns how many were removed. A provider's catalog is
	// shared upstream, so a change seen by one tenant is a change for all.
	DeleteProvider(ctx context.Context, provider string) (int, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// ClampLimit applies the list bounds shared by the adapters: 1..100,
// default 20.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return 20
	case n > 100:
		return 100
	}
	return n
}
