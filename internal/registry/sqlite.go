package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS device_tokens (
	token         TEXT PRIMARY KEY,
	registered_at INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS device_tokens_registered_at_idx ON device_tokens (registered_at);
`

// SQLite is a single-file registry for deployments without a database server.
// Timestamps are stored as unix milliseconds.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &SQLite{db: conn, now: time.Now}, nil
}

func (s *SQLite) Register(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	ms := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_tokens(token, registered_at, updated_at) VALUES(?,?,?)
		 ON CONFLICT(token) DO UPDATE SET updated_at=excluded.updated_at`,
		id, ms, ms,
	)
	if err != nil {
		return unavailable("register", err)
	}
	return nil
}

func (s *SQLite) ListAll(ctx context.Context) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, registered_at FROM device_tokens ORDER BY registered_at, token`)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var (
			id string
			ms int64
		)
		if err := rows.Scan(&id, &ms); err != nil {
			return nil, unavailable("list", err)
		}
		out = append(out, Recipient{ID: id, RegisteredAt: time.UnixMilli(ms)})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return out, nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM device_tokens`).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
