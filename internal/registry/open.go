package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/ticketwatch/internal/db"
)

// Config selects and configures a driver.
type Config struct {
	Driver string // postgres, redis, sqlite, memory

	DatabaseURL string
	MinConns    int
	MaxConns    int
	MaxConnLife time.Duration

	RedisURL string
	RedisKey string

	SQLitePath string

	// Timeout bounds every store call. Zero disables it.
	Timeout time.Duration
}

// Open initializes the configured driver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		reg Registry
		err error
	)
	switch cfg.Driver {
	case "postgres":
		var pool *db.Pool
		pool, err = db.New(ctx, db.Options{
			URL:         cfg.DatabaseURL,
			MinConns:    cfg.MinConns,
			MaxConns:    cfg.MaxConns,
			MaxConnLife: cfg.MaxConnLife,
		})
		if err == nil {
			reg = NewPostgres(pool, pool.Close)
		}
	case "redis":
		reg, err = NewRedis(ctx, cfg.RedisURL, cfg.RedisKey)
	case "sqlite":
		reg, err = NewSQLite(ctx, cfg.SQLitePath)
	case "memory", "":
		reg = NewMemory()
	default:
		return nil, fmt.Errorf("unknown registry driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s registry: %w", cfg.Driver, err)
	}

	logger.Info("Recipient registry ready", "driver", cfg.Driver, "timeout", cfg.Timeout)
	return WithTimeout(reg, cfg.Timeout), nil
}

// WithTimeout bounds each call on reg by d. Returns reg unchanged when d <= 0.
func WithTimeout(reg Registry, d time.Duration) Registry {
	if d <= 0 {
		return reg
	}
	return &timed{next: reg, d: d}
}

type timed struct {
	next Registry
	d    time.Duration
}

func (t *timed) Register(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Register(ctx, id)
}

func (t *timed) ListAll(ctx context.Context) ([]Recipient, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.ListAll(ctx)
}

func (t *timed) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Count(ctx)
}

func (t *timed) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Ping(ctx)
}

func (t *timed) Close() error { return t.next.Close() }
