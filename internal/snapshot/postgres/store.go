package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"autodrop/internal/postgres"
	"autodrop/internal/snapshot"
)

const DefaultName = "default"

const createTableSQL = `CREATE TABLE IF NOT EXISTS autodrop_snapshots (
	name     TEXT PRIMARY KEY,
	version  INTEGER NOT NULL,
	body     JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
)`

const upsertSQL = `INSERT INTO autodrop_snapshots (name, version, body, saved_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name) DO UPDATE
SET version = EXCLUDED.version, body = EXCLUDED.body, saved_at = EXCLUDED.saved_at`

const selectSQL = `SELECT body FROM autodrop_snapshots WHERE name = $1`

// querier is the subset of *pgxpool.Pool the store needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store keeps one snapshot row per name, overwritten on every save.
type Store struct {
	db   querier
	name string
}

// Open connects with cfg, creates the table if needed and returns the pool
// so the caller can close it.
func Open(ctx context.Context, cfg postgres.Config) (*Store, *pgxpool.Pool, error) {
	pc, err := cfg.PoolConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", snapshot.ErrUnavailable, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", snapshot.ErrUnavailable, err)
	}
	store := NewWithQuerier(pool, cfg.SnapshotName)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

func NewWithQuerier(db querier, name string) *Store {
	if name == "" {
		name = DefaultName
	}
	return &Store{db: db, name: name}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("%w: migrate: %v", snapshot.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, snap snapshot.Snapshot) error {
	data, err := snapshot.Encode(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.db.Exec(ctx, upsertSQL, s.name, snapshot.Version, data, snap.SavedAt); err != nil {
		return fmt.Errorf("%w: %v", snapshot.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (snapshot.Snapshot, error) {
	var body []byte
	err := s.db.QueryRow(ctx, selectSQL, s.name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return snapshot.Snapshot{}, snapshot.ErrNotFound
	}
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: %v", snapshot.ErrUnavailable, err)
	}
	return snapshot.Decode(body)
}
