package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/albapepper/ticketwatch/internal/api/respond"
	"github.com/albapepper/ticketwatch/internal/registry"
)

const (
	msgTokenRequired = "Token is required"
	msgTokenTooLong  = "Token is too long"
)

// RegisterRequest is the body of POST /register-device.
type RegisterRequest struct {
	Token string `json:"token" validate:"required"`
}

// PingResponse is the body of GET /ping.
type PingResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// RegisterResponse is the success body of POST /register-device.
type RegisterResponse struct {
	Success bool `json:"success"`
}

// Ping is a connectivity probe for the mobile app.
// @Summary Connectivity check
// @Tags devices
// @Produce json
// @Success 200 {object} PingResponse
// @Router /ping [get]
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, PingResponse{
		Success:   true,
		Message:   "Server is reachable!",
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// RegisterDevice stores a push token so the device receives the alert.
// @Summary Register a device token
// @Tags devices
// @Accept json
// @Produce json
// @Param body body RegisterRequest true "Device token"
// @Success 200 {object} RegisterResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /register-device [post]
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respond.WriteError(w, http.StatusBadRequest, msgTokenTooLong)
			return
		}
		respond.WriteError(w, http.StatusBadRequest, msgTokenRequired)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			respond.WriteError(w, http.StatusBadRequest, msgTokenRequired)
			return
		}
		respond.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Token) > registry.MaxIDLength {
		respond.WriteError(w, http.StatusBadRequest, msgTokenTooLong)
		return
	}

	if err := h.registry.Register(r.Context(), req.Token); err != nil {
		if errors.Is(err, registry.ErrInvalidID) {
			respond.WriteError(w, http.StatusBadRequest, msgTokenRequired)
			return
		}
		h.logger.Error("device registration failed", "error", err)
		respond.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	h.logger.Info("Device token registered", "token", tokenPrefix(req.Token))
	respond.WriteJSONObject(w, http.StatusOK, RegisterResponse{Success: true})
}

func tokenPrefix(tok string) string {
	const n = 12
	if len(tok) <= n {
		return tok
	}
	return tok[:n] + "..."
}
