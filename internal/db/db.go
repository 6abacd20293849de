// Package db provides a pgxpool-based connection pool with prepared statement
// registration and schema bootstrap.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Prepared statement names, registered on every new connection.
const (
	StmtHealthCheck       = "health_check"
	StmtRegisterRecipient = "register_recipient"
	StmtListRecipients    = "list_recipients"
	StmtCountRecipients   = "count_recipients"
)

// Schema creates the device token table. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS device_tokens (
	token         TEXT PRIMARY KEY,
	registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS device_tokens_registered_at_idx ON device_tokens (registered_at);
`

// Options configures the pool.
type Options struct {
	URL         string
	MinConns    int
	MaxConns    int
	MaxConnLife time.Duration
}

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New ensures the schema exists, then creates and validates a connection pool.
func New(ctx context.Context, opts Options) (*Pool, error) {
	// Statements are prepared in AfterConnect, which fails if the table is
	// missing, so the schema goes in first over a one-off connection.
	if err := EnsureSchema(ctx, opts.URL); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if opts.MinConns > 0 {
		poolCfg.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.MaxConnLife > 0 {
		poolCfg.MaxConnLifetime = opts.MaxConnLife
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// EnsureSchema applies Schema over a dedicated connection.
func EnsureSchema(ctx context.Context, url string) error {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		StmtHealthCheck: "SELECT 1",

		// Re-registration only bumps updated_at; registered_at keeps the
		// first-seen time.
		StmtRegisterRecipient: `INSERT INTO device_tokens (token) VALUES ($1)
			ON CONFLICT (token) DO UPDATE SET updated_at = NOW()`,
		StmtListRecipients:  "SELECT token, registered_at FROM device_tokens ORDER BY registered_at, token",
		StmtCountRecipients: "SELECT COUNT(*) FROM device_tokens",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
