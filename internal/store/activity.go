package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

type Activity struct {
	ID        string
	At        time.Time
	ActorRole string
	ActorName string
	Action    string
	Target    string
	Outcome   string
}

func (s *Store) Record(ctx context.Context, a Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO activities (id, at, actor_role, actor_name, action, target, outcome)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.At, a.ActorRole, a.ActorName, a.Action, a.Target, a.Outcome,
	)
	return err
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Activity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, at, actor_role, actor_name, action, target, outcome
		 FROM activities
		 ORDER BY at DESC
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.At, &a.ActorRole, &a.ActorName, &a.Action, &a.Target, &a.Outcome); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
