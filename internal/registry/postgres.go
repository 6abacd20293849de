package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/albapepper/ticketwatch/internal/db"
)

// DBTX is the subset of pgx used by the Postgres driver. Satisfied by
// *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores recipients in the device_tokens table through the prepared
// statements registered by db.New.
type Postgres struct {
	db    DBTX
	close func()
}

// NewPostgres wraps an existing connection. close may be nil.
func NewPostgres(conn DBTX, close func()) *Postgres {
	return &Postgres{db: conn, close: close}
}

func (p *Postgres) Register(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if _, err := p.db.Exec(ctx, db.StmtRegisterRecipient, id); err != nil {
		return unavailable("register", err)
	}
	return nil
}

func (p *Postgres) ListAll(ctx context.Context) ([]Recipient, error) {
	rows, err := p.db.Query(ctx, db.StmtListRecipients)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var (
			r  Recipient
			at time.Time
		)
		if err := rows.Scan(&r.ID, &at); err != nil {
			return nil, unavailable("list", fmt.Errorf("scan recipient: %w", err))
		}
		r.RegisteredAt = at
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return out, nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int64
	if err := p.db.QueryRow(ctx, db.StmtCountRecipients).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return int(n), nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	var one int
	if err := p.db.QueryRow(ctx, db.StmtHealthCheck).Scan(&one); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}
