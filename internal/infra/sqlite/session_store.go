package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"omrzen/internal/domain"
)

const schema = `CREATE TABLE IF NOT EXISTS session_fields (
	field TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at_unix INTEGER NOT NULL
);`

// SessionStore persists session fields in a local SQLite file, one row per field.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path and applies the schema.
// Safe to call on an existing file.
func Open(path string) (*SessionStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "omrzen.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStorageUnavailable, path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStorageUnavailable, path, err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrStorageUnavailable, pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", domain.ErrStorageUnavailable, err)
	}

	return &SessionStore{db: db, now: time.Now}, nil
}

func (s *SessionStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SessionStore) Get(ctx context.Context, field domain.Field) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session_fields WHERE field = ?`, string(field)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %v", domain.ErrStorageUnavailable, field, err)
	}
	return value, true, nil
}

func (s *SessionStore) Set(ctx context.Context, field domain.Field, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_fields (field, value, updated_at_unix) VALUES (?, ?, ?)
		 ON CONFLICT(field) DO UPDATE SET value = excluded.value, updated_at_unix = excluded.updated_at_unix`,
		string(field), value, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrStorageUnavailable, field, err)
	}
	return nil
}

// Delete removes the fields with one statement, so a reset is never partial.
func (s *SessionStore) Delete(ctx context.Context, fields ...domain.Field) error {
	if len(fields) == 0 {
		return nil
	}
	placeholders := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		placeholders[i] = "?"
		args[i] = string(f)
	}
	query := `DELETE FROM session_fields WHERE field IN (` + strings.Join(placeholders, ", ") + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: delete: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}
