package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"omrzen/internal/domain"
)

// SessionStore keeps session fields in the session_fields table.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Get(ctx context.Context, field domain.Field) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM session_fields WHERE field=$1`, string(field)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %v", domain.ErrStorageUnavailable, field, err)
	}
	return value, true, nil
}

func (s *SessionStore) Set(ctx context.Context, field domain.Field, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_fields (field, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (field) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		string(field), value,
	)
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrStorageUnavailable, field, err)
	}
	return nil
}

// Delete removes every named field in a single statement.
func (s *SessionStore) Delete(ctx context.Context, fields ...domain.Field) error {
	if len(fields) == 0 {
		return nil
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM session_fields WHERE field = ANY($1)`, names); err != nil {
		return fmt.Errorf("%w: delete: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}
