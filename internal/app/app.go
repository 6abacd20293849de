// Package app wires configuration into the running components. Shared by
// cmd/api and cmd/ticketctl.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/albapepper/ticketwatch/internal/config"
	"github.com/albapepper/ticketwatch/internal/feed"
	"github.com/albapepper/ticketwatch/internal/notifications"
	"github.com/albapepper/ticketwatch/internal/poller"
	"github.com/albapepper/ticketwatch/internal/registry"
	"github.com/albapepper/ticketwatch/internal/scheduler"
)

// App holds the wired components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Registry   registry.Registry
	Feed       *feed.Client
	Provider   notifications.Provider
	Dispatcher *notifications.Dispatcher
	Poller     *poller.Poller
	Scheduler  *scheduler.Scheduler
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// OpenRegistry opens the configured recipient registry.
func OpenRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (registry.Registry, error) {
	return registry.Open(ctx, registry.Config{
		Driver:      cfg.RegistryDriver,
		DatabaseURL: cfg.DatabaseURL,
		MinConns:    cfg.DBPoolMinConns,
		MaxConns:    cfg.DBPoolMaxConns,
		MaxConnLife: cfg.DBPoolMaxLife,
		RedisURL:    cfg.RedisURL,
		RedisKey:    cfg.RedisKey,
		SQLitePath:  cfg.SQLitePath,
		Timeout:     cfg.RegistryTimeout,
	}, logger)
}

// Message returns the configured booking alert.
func Message(cfg *config.Config) notifications.Message {
	return notifications.NewBookingOpened(cfg.NotifyTitle, cfg.NotifyBody, cfg.NotifyMatchDetails)
}

// Build opens the registry and constructs every component. The scheduler is
// returned stopped.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg, err := OpenRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a, err := build(ctx, cfg, reg, logger)
	if err != nil {
		return nil, errors.Join(err, reg.Close())
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, reg registry.Registry, logger *slog.Logger) (*App, error) {
	provider, err := notifications.NewProvider(ctx, cfg.FirebaseCredentials, logger)
	if err != nil {
		return nil, err
	}

	feedClient := feed.NewClient(feed.ClientConfig{
		URL:               cfg.FeedURL,
		UserAgent:         cfg.FeedUserAgent,
		Timeout:           cfg.FeedTimeout,
		RequestsPerMinute: cfg.FeedRatePerMinute,
		Logger:            logger,
	})

	dispatcher := notifications.NewDispatcher(notifications.DispatcherConfig{
		Registry:    reg,
		Provider:    provider,
		BatchSize:   cfg.MaxBatchSize,
		Concurrency: cfg.DispatchConcurrency,
		SendTimeout: cfg.ProviderTimeout,
		Logger:      logger,
	})

	// POLL_TIMEOUT bounds the fetch. Broadcasts run to completion under the
	// per-batch provider timeout.
	p := poller.New(poller.Config{
		Fetcher:      feedClient,
		Trigger:      feed.Trigger{TargetParticipant: cfg.TargetParticipant, OpenMarker: cfg.OpenMarker},
		Broadcaster:  dispatcher,
		Message:      Message(cfg),
		Mode:         poller.ParseMode(cfg.NotifyMode),
		Logger:       logger,
		FetchTimeout: cfg.PollTimeout,
	})

	sched, err := scheduler.New(p.PollOnce, scheduler.Config{
		Spec:    cfg.PollSchedule,
		Overlap: scheduler.Overlap(cfg.PollOverlap),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		Registry:   reg,
		Feed:       feedClient,
		Provider:   provider,
		Dispatcher: dispatcher,
		Poller:     p,
		Scheduler:  sched,
	}, nil
}

// Close releases the registry.
func (a *App) Close() error {
	return a.Registry.Close()
}
