// Package handler provides HTTP handlers for all API endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/albapepper/ticketwatch/internal/api/respond"
	"github.com/albapepper/ticketwatch/internal/config"
	"github.com/albapepper/ticketwatch/internal/poller"
)

// Registrar is the registry surface the API needs.
type Registrar interface {
	Register(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// StatsSource reports poller progress for /health. May be nil.
type StatsSource interface {
	Stats() poller.Stats
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	registry Registrar
	stats    StatsSource
	cfg      *config.Config
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(reg Registrar, stats StatsSource, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: reg,
		stats:    stats,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
	}
}

// Root serves service info at /.
// @Summary Service info
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":   "ticketwatch",
		"status": "running",
		"docs":   "/docs/",
		"watching": map[string]string{
			"participant": h.cfg.TargetParticipant,
			"marker":      h.cfg.OpenMarker,
		},
	})
}

// HealthCheck returns service status and poller counters.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "healthy",
		"registry":  h.cfg.RegistryDriver,
		"push":      h.cfg.PushEnabled(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.stats != nil {
		body["poller"] = h.stats.Stats()
	}
	if n, err := h.registry.Count(r.Context()); err == nil {
		body["devices"] = n
	}
	respond.WriteJSONObject(w, http.StatusOK, body)
}

// HealthCheckDB verifies registry connectivity.
// @Summary Registry health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Ping(r.Context()); err != nil {
		h.logger.Warn("registry health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"registry":  "disconnected",
			"error":     "Registry connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"registry":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
