// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/ticketctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// --------------------------------------------------------------------------
// Defaults: the values the first deployment ran with
// --------------------------------------------------------------------------

const (
	DefaultFeedURL        = "https://rcbmpapi.ticketgenie.in/ticket/eventlist/O"
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	DefaultPollSchedule   = "*/45 * * * * *"
	DefaultTarget         = "Chennai Super Kings"
	DefaultOpenMarker     = "BUY TICKETS"
	DefaultNotifyTitle    = "🚨 RCB vs CSK Match Alert!"
	DefaultNotifyBody     = "Booking is now open for the RCB vs Chennai Super Kings!"
	DefaultMatchDetails   = "RCB vs CSK"
	DefaultRedisKey       = "ticketwatch:device_tokens"
	DefaultSQLitePath     = "data/ticketwatch.db"
	DefaultRegistryDriver = "postgres"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// API server
	APIHost     string `envconfig:"API_HOST" default:"0.0.0.0"`
	APIPort     int    `envconfig:"API_PORT" validate:"min=1,max=65535"`
	Environment string `envconfig:"ENVIRONMENT" default:"development" validate:"oneof=development staging production"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`

	// Feed
	FeedURL           string        `envconfig:"FEED_URL" validate:"required,url"`
	FeedUserAgent     string        `envconfig:"FEED_USER_AGENT"`
	FeedTimeout       time.Duration `envconfig:"FEED_TIMEOUT" default:"15s" validate:"min=1s,max=60s"`
	FeedRatePerMinute int           `envconfig:"FEED_RATE_PER_MINUTE" default:"60" validate:"min=0"`

	// Trigger
	TargetParticipant string `envconfig:"TARGET_PARTICIPANT" validate:"required"`
	OpenMarker        string `envconfig:"OPEN_MARKER" validate:"required"`

	// Polling
	PollSchedule string        `envconfig:"POLL_SCHEDULE" validate:"required"`
	PollOverlap  string        `envconfig:"POLL_OVERLAP" default:"skip" validate:"oneof=skip allow"`
	PollTimeout  time.Duration `envconfig:"POLL_TIMEOUT" default:"30s" validate:"min=1s"`
	PollOnStart  bool          `envconfig:"POLL_ON_START" default:"true"`
	NotifyMode   string        `envconfig:"NOTIFY_MODE" default:"edge" validate:"oneof=edge level"`

	// Notification content
	NotifyTitle        string `envconfig:"NOTIFY_TITLE"`
	NotifyBody         string `envconfig:"NOTIFY_BODY"`
	NotifyMatchDetails string `envconfig:"NOTIFY_MATCH_DETAILS"`

	// Dispatch
	MaxBatchSize        int           `envconfig:"MAX_BATCH_SIZE" default:"500" validate:"min=1,max=500"`
	DispatchConcurrency int           `envconfig:"DISPATCH_CONCURRENCY" default:"1" validate:"min=1,max=16"`
	ProviderTimeout     time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s" validate:"min=1s,max=60s"`
	FirebaseCredentials string        `envconfig:"FIREBASE_CREDENTIALS_FILE"`

	// Registry
	RegistryDriver  string        `envconfig:"REGISTRY_DRIVER" validate:"oneof=postgres redis sqlite memory"`
	DatabaseURL     string        `envconfig:"DATABASE_URL" validate:"required_if=RegistryDriver postgres"`
	DBPoolMinConns  int           `envconfig:"DB_POOL_MIN_CONNS" default:"1" validate:"min=0"`
	DBPoolMaxConns  int           `envconfig:"DB_POOL_MAX_CONNS" default:"5" validate:"min=1,gtefield=DBPoolMinConns"`
	DBPoolMaxLife   time.Duration `envconfig:"DB_POOL_MAX_LIFE" default:"30m"`
	RedisURL        string        `envconfig:"REDIS_URL" validate:"required_if=RegistryDriver redis"`
	RedisKey        string        `envconfig:"REDIS_KEY"`
	SQLitePath      string        `envconfig:"SQLITE_PATH"`
	RegistryTimeout time.Duration `envconfig:"REGISTRY_TIMEOUT" default:"10s" validate:"min=1s,max=60s"`

	// CORS
	CORSAllowOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"*"`

	// Rate limiting
	RateLimitEnabled  bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"30" validate:"min=1"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s" validate:"min=1s"`
}

// Error is returned by Load when the environment cannot be parsed or fails
// validation.
type Error struct {
	Stage string // "parse" or "validate"
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Load reads configuration from environment variables with sensible defaults.
// The caller is expected to have loaded any .env file beforehand.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &Error{Stage: "parse", Err: err}
	}

	// String defaults live here rather than in tags: several contain commas
	// or spaces that envconfig would mangle.
	cfg.FeedURL = orDefault(cfg.FeedURL, DefaultFeedURL)
	cfg.FeedUserAgent = orDefault(cfg.FeedUserAgent, DefaultUserAgent)
	cfg.TargetParticipant = orDefault(cfg.TargetParticipant, DefaultTarget)
	cfg.OpenMarker = orDefault(cfg.OpenMarker, DefaultOpenMarker)
	cfg.PollSchedule = orDefault(cfg.PollSchedule, DefaultPollSchedule)
	cfg.NotifyTitle = orDefault(cfg.NotifyTitle, DefaultNotifyTitle)
	cfg.NotifyBody = orDefault(cfg.NotifyBody, DefaultNotifyBody)
	cfg.NotifyMatchDetails = orDefault(cfg.NotifyMatchDetails, DefaultMatchDetails)
	cfg.RegistryDriver = orDefault(cfg.RegistryDriver, DefaultRegistryDriver)
	cfg.RedisKey = orDefault(cfg.RedisKey, DefaultRedisKey)
	cfg.SQLitePath = orDefault(cfg.SQLitePath, DefaultSQLitePath)

	// API_PORT wins; PORT is what most PaaS runtimes inject.
	if cfg.APIPort == 0 {
		cfg.APIPort = envInt("PORT", 3000)
	}
	// The first deployment exported the service account JSON itself here.
	if cfg.FirebaseCredentials == "" {
		cfg.FirebaseCredentials = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &Error{Stage: "validate", Err: err}
	}
	return &cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// PushEnabled reports whether Firebase credentials were supplied.
func (c *Config) PushEnabled() bool {
	return c.FirebaseCredentials != ""
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
