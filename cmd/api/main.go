// Command api is the ticketwatch server: it serves device registration and
// runs the feed poller on its schedule.
//
// Usage:
//
//	ticketwatch-api
//	API_PORT=8080 REGISTRY_DRIVER=sqlite ticketwatch-api

// @title Ticketwatch API
// @version 1.0.0
// @description Registers devices for push alerts and reports poller health.
// @host localhost:3000
// @BasePath /
// @schemes http https
// @contact.name Ticketwatch
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"github.com/albapepper/ticketwatch/internal/api"
	"github.com/albapepper/ticketwatch/internal/app"
	"github.com/albapepper/ticketwatch/internal/config"

	_ "github.com/albapepper/ticketwatch/docs" // swagger docs
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("Opening recipient registry...", "driver", cfg.RegistryDriver)
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	logger.Info("Watching feed",
		"url", cfg.FeedURL,
		"participant", cfg.TargetParticipant,
		"marker", cfg.OpenMarker,
		"mode", cfg.NotifyMode,
		"provider", a.Provider.Name())

	// Start the poll schedule
	a.Scheduler.Start(ctx)
	if cfg.PollOnStart {
		go a.Scheduler.RunNow(ctx)
	}

	// Create router
	router := api.NewRouter(a.Registry, a.Poller, cfg, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting ticketwatch API",
			"addr", srv.Addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("systemd notify failed", "error", err)
	} else if ok {
		logger.Info("Notified systemd ready")
	}

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	select {
	case <-a.Scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("Poll still running at shutdown deadline")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
