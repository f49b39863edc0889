package pause

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS pause_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	paused_until_ns INTEGER NOT NULL
)`

// SQLiteStore keeps the timestamp in a one-row SQLite table.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create pause schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if s == nil || s.sqlDB == nil {
		return time.Time{}, fmt.Errorf("storage is not configured")
	}
	var nanos int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT paused_until_ns FROM pause_state WHERE id = 1`).Scan(&nanos)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNoState
		}
		return time.Time{}, fmt.Errorf("query pause state: %w", err)
	}
	return time.Unix(0, nanos).UTC(), nil
}

func (s *SQLiteStore) Save(ctx context.Context, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO pause_state (id, paused_until_ns) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET paused_until_ns = excluded.paused_until_ns`,
		until.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert pause state: %w", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
