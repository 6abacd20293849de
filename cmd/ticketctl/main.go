// Command ticketctl is the ticketwatch operations CLI.
//
// Usage:
//
//	ticketctl check
//	ticketctl poll
//	ticketctl broadcast --dry-run
//	ticketctl broadcast --title "Gates open" --body "Booking is live"
//	ticketctl register <token>
//	ticketctl recipients --count
//	ticketctl migrate
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/ticketwatch/internal/app"
	"github.com/albapepper/ticketwatch/internal/config"
	"github.com/albapepper/ticketwatch/internal/db"
	"github.com/albapepper/ticketwatch/internal/feed"
	"github.com/albapepper/ticketwatch/internal/notifications"
	"github.com/albapepper/ticketwatch/internal/poller"
	"github.com/albapepper/ticketwatch/internal/registry"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "ticketctl",
		Short:        "ticketwatch operations CLI",
		SilenceUsage: true,
	}

	root.AddCommand(checkCmd())
	root.AddCommand(pollCmd())
	root.AddCommand(broadcastCmd())
	root.AddCommand(registerCmd())
	root.AddCommand(recipientsCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// feed commands
// --------------------------------------------------------------------------

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Fetch the feed and evaluate the trigger without notifying",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config) error {
				client := feed.NewClient(feed.ClientConfig{
					URL:       cfg.FeedURL,
					UserAgent: cfg.FeedUserAgent,
					Timeout:   cfg.FeedTimeout,
					Logger:    logger,
				})
				snap, err := client.Fetch(ctx)
				if err != nil {
					return err
				}
				trig := feed.Trigger{TargetParticipant: cfg.TargetParticipant, OpenMarker: cfg.OpenMarker}
				ev, open := trig.Match(snap)
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"events": len(snap.Events),
					"open":   open,
					"match":  matchOrNil(ev, open),
				})
			})
		},
	}
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run one poll cycle, broadcasting if booking is open",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				// A one-shot run has no previous state, so always act on an
				// open feed.
				p := poller.New(poller.Config{
					Fetcher:      a.Feed,
					Trigger:      feed.Trigger{TargetParticipant: a.Config.TargetParticipant, OpenMarker: a.Config.OpenMarker},
					Broadcaster:  a.Dispatcher,
					Message:      app.Message(a.Config),
					Mode:         poller.ModeLevel,
					Logger:       logger,
					FetchTimeout: a.Config.PollTimeout,
				})
				out := p.Poll(ctx)
				if out.Err != nil {
					return out.Err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"open":   out.Open,
					"match":  matchOrNil(out.Event, out.Open),
					"sent":   out.Sent,
					"result": out.Result,
				})
			})
		},
	}
}

// --------------------------------------------------------------------------
// notification commands
// --------------------------------------------------------------------------

func broadcastCmd() *cobra.Command {
	var title, body string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Send the booking alert to every registered device now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, cfg *config.Config, reg registry.Registry) error {
				var provider notifications.Provider = notifications.NewLogProvider(logger)
				if !dryRun {
					var err error
					if provider, err = notifications.NewProvider(ctx, cfg.FirebaseCredentials, logger); err != nil {
						return err
					}
				}

				msg := app.Message(cfg)
				if title != "" {
					msg.Title = title
				}
				if body != "" {
					msg.Body = body
				}

				d := notifications.NewDispatcher(notifications.DispatcherConfig{
					Registry:    reg,
					Provider:    provider,
					BatchSize:   cfg.MaxBatchSize,
					Concurrency: cfg.DispatchConcurrency,
					SendTimeout: cfg.ProviderTimeout,
					Logger:      logger,
				})
				res, err := d.Broadcast(ctx, msg)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Override the notification title")
	cmd.Flags().StringVar(&body, "body", "", "Override the notification body")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log instead of delivering")
	return cmd
}

// --------------------------------------------------------------------------
// registry commands
// --------------------------------------------------------------------------

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <token>",
		Short: "Register a device token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, _ *config.Config, reg registry.Registry) error {
				if err := reg.Register(ctx, args[0]); err != nil {
					return err
				}
				logger.Info("Device token registered")
				return nil
			})
		},
	}
}

func recipientsCmd() *cobra.Command {
	var countOnly bool
	cmd := &cobra.Command{
		Use:   "recipients",
		Short: "List registered device tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, _ *config.Config, reg registry.Registry) error {
				if countOnly {
					n, err := reg.Count(ctx)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
					return err
				}
				all, err := reg.ListAll(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, r := range all {
					if _, err := fmt.Fprintf(w, "%s\t%s\n", r.RegisteredAt.UTC().Format(time.RFC3339), r.ID); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&countOnly, "count", false, "Print only the number of recipients")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the registry schema for the configured driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config) error {
				switch cfg.RegistryDriver {
				case "postgres":
					if err := db.EnsureSchema(ctx, cfg.DatabaseURL); err != nil {
						return err
					}
				case "sqlite":
					s, err := registry.NewSQLite(ctx, cfg.SQLitePath)
					if err != nil {
						return err
					}
					if err := s.Close(); err != nil {
						return err
					}
				default:
					logger.Info("Driver has no schema", "driver", cfg.RegistryDriver)
					return nil
				}
				logger.Info("Schema ready", "driver", cfg.RegistryDriver)
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// helpers
// --------------------------------------------------------------------------

func run(fn func(ctx context.Context, cfg *config.Config) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = app.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	return fn(ctx, cfg)
}

func withRegistry(fn func(ctx context.Context, cfg *config.Config, reg registry.Registry) error) error {
	return run(func(ctx context.Context, cfg *config.Config) error {
		reg, err := app.OpenRegistry(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer reg.Close()
		return fn(ctx, cfg, reg)
	})
}

func withApp(fn func(ctx context.Context, a *app.App) error) error {
	return run(func(ctx context.Context, cfg *config.Config) error {
		a, err := app.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a)
	})
}

func matchOrNil(ev feed.Event, ok bool) *feed.Event {
	if !ok {
		return nil
	}
	return &ev
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
