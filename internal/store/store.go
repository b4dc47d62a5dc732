// Package store keeps the portal's own activity log in postgres. Clinic
// data itself lives behind the backend and is never stored here.
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate runs a schema script; statements must be idempotent.
func (s *Store) Migrate(ctx context.Context, script string) error {
	_, err := s.pool.Exec(ctx, script)
	return err
}

// ActivityLog is what the handlers depend on, so the portal can run
// without a database.
type ActivityLog interface {
	Record(ctx context.Context, a Activity) error
	Recent(ctx context.Context, limit int) ([]Activity, error)
}

type discard struct{}

func (discard) Record(context.Context, Activity) error          { return nil }
func (discard) Recent(context.Context, int) ([]Activity, error) { return nil, nil }

// Discard drops every entry. Used when DATABASE_URL is unset.
var Discard ActivityLog = discard{}
