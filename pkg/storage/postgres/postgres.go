// Package postgres provides a PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling and JSONB for snapshot payloads.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/storage"
)

// Store is a PostgreSQL-backed snapshot store.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Save upserts a snapshot. The row is only replaced when the incoming
// snapshot is at least as fresh as the stored one.
func (s *Store) Save(ctx context.Context, snap storage.Snapshot) error {
	tenantID := storage.GetTenant(ctx)

	result, err := s.pool.Exec(ctx, `
		INSERT INTO catalog_snapshots (tenant_id, key, provider, resource, data, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, key) DO UPDATE
		SET provider = EXCLUDED.provider,
		    resource = EXCLUDED.resource,
		    data = EXCLUDED.data,
		    fetched_at = EXCLUDED.fetched_at
		WHERE catalog_snapshots.fetched_at <= EXCLUDED.fetched_at
	`,
		tenantID, snap.Key, snap.Provider, snap.Resource, []byte(snap.Data), snap.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrConflict
	}
	return nil
}

// Get retrieves a snapshot by key.
func (s *Store) Get(ctx context.Context, key string) (storage.Snapshot, error) {
	tenantID := storage.GetTenant(ctx)

	row := s.pool.QueryRow(ctx, `
		SELECT tenant_id, key, provider, resource, data, fetched_at
		FROM catalog_snapshots
		WHERE tenant_id = $1 AND key = $2
	`, tenantID, key)

	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("querying snapshot: %w", err)
	}
	return snap, nil
}

// List returns snapshots ordered by fetch time with key cursors. An
// unknown cursor gives an empty page.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*api.Page[storage.Snapshot], error) {
	tenantID := storage.GetTenant(ctx)
	limit := storage.ClampLimit(opts.Limit)

	desc := opts.Order != "asc"
	cursor := opts.After
	// Before walks the list backwards from the cursor.
	backwards := cursor == "" && opts.Before != ""
	if backwards {
		cursor = opts.Before
	}
	// Rows are read in the walking direction: desc, or its reverse when
	// paging backwards.
	walkDesc := desc != backwards

	query := `SELECT tenant_id, key, provider, resource, data, fetched_at
		FROM catalog_snapshots WHERE tenant_id = $1`
	args := []any{tenantID}

	if opts.Provider != "" {
		args = append(args, opts.Provider)
		query += fmt.Sprintf(" AND provider = $%d", len(args))
	}

	if cursor != "" {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM catalog_snapshots WHERE tenant_id = $1 AND key = $2)",
			tenantID, cursor,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("resolving cursor: %w", err)
		}
		if !exists {
			page := api.NewPage[storage.Snapshot](nil, snapshotKey)
			page.Limit = limit
			return &page, nil
		}

		args = append(args, cursor)
		cmp := ">"
		if walkDesc {
			cmp = "<"
		}
		query += fmt.Sprintf(` AND (fetched_at, key) %s (
			SELECT fetched_at, key FROM catalog_snapshots WHERE tenant_id = $1 AND key = $%d)`,
			cmp, len(args))
	}

	if walkDesc {
		query += " ORDER BY fetched_at DESC, key DESC"
	} else {
		query += " ORDER BY fetched_at ASC, key ASC"
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []storage.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}

	hasMore := len(snaps) > limit
	if hasMore {
		snaps = snaps[:limit]
	}
	if backwards {
		for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
			snaps[i], snaps[j] = snaps[j], snaps[i]
		}
	}

	page := api.NewPage(snaps, snapshotKey)
	page.HasMore = hasMore
	page.Limit = limit
	page.Clamped = opts.Limit > 100
	return &page, nil
}

// Delete removes a snapshot.
func (s *Store) Delete(ctx context.Context, key string) error {
	result, err := s.pool.Exec(ctx,
		"DELETE FROM catalog_snapshots WHERE tenant_id = $1 AND key = $2",
		storage.GetTenant(ctx), key)
	if err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteProvider removes the provider's snapshots of every tenant.
func (s *Store) DeleteProvider(ctx context.Context, provider string) (int, error) {
	result, err := s.pool.Exec(ctx,
		"DELETE FROM catalog_snapshots WHERE provider = $1", provider)
	if err != nil {
		return 0, fmt.Errorf("deleting provider snapshots: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func snapshotKey(sn storage.Snapshot) string { return sn.Key }

func scanSnapshot(row pgx.Row) (storage.Snapshot, error) {
	var snap storage.Snapshot
	var data []byte
	if err := row.Scan(&snap.Tenant, &snap.Key, &snap.Provider, &snap.Resource, &data, &snap.FetchedAt); err != nil {
		return storage.Snapshot{}, err
	}
	snap.Data = data
	return snap, nil
}
