// Package postgres provides a [kv.Store] backed by PostgreSQL. Shared
// classroom deployments use it so that several tutor devices read the same
// child preferences.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/tutorvoz/pkg/kv"
)

var (
	_ kv.Store  = (*Store)(nil)
	_ kv.Pinger = (*Store)(nil)
)

// DefaultTable is the table used when [WithTable] is not supplied.
const DefaultTable = "tutorvoz_kv"

// Option is a functional option for [New].
type Option func(*Store)

// WithTable overrides the table name. The name is used verbatim in SQL
// statements and must be a trusted identifier.
func WithTable(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.table = name
		}
	}
}

// Store is a PostgreSQL-backed [kv.Store]. All operations are safe for
// concurrent use.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// New connects to the database at dsn and runs [Store.Migrate].
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres kv: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres kv: ping: %w", err)
	}

	s := &Store{pool: pool, table: DefaultTable}
	for _, o := range opts {
		o(s)
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the backing table when it does not exist. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres kv: migrate: %w", err)
	}
	return nil
}

// Get returns the value stored under key or [kv.ErrNotFound].
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var v string
	q := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.table)
	err := s.pool.QueryRow(ctx, q, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("postgres kv: get %q: %w", key, kv.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("postgres kv: get %q: %w", key, err)
	}
	return v, nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	q := fmt.Sprintf(`
INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, s.table)
	if _, err := s.pool.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("postgres kv: set %q: %w", key, err)
	}
	return nil
}

// Ping verifies the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
