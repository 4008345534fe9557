package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SaveSession upserts the serialized session state. Rows are opaque to the
// store; the consultation service owns the format.
func (s *Store) SaveSession(ctx context.Context, id string, state []byte, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO consult_sessions (id, state, updated_at, expires_at)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state, updated_at = now(), expires_at = EXCLUDED.expires_at`,
		id, state, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// LoadSession returns the stored state for id. Expired rows are treated as
// missing.
func (s *Store) LoadSession(ctx context.Context, id string) ([]byte, bool, error) {
	var state []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state FROM consult_sessions
		WHERE id = $1 AND expires_at > now()`, id,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	return state, true, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM consult_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes every row whose expiry is at or before now and
// returns how many were removed.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM consult_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
