package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/ticketwatch/internal/config"
	"github.com/albapepper/ticketwatch/internal/poller"
	"github.com/albapepper/ticketwatch/internal/registry"
)

type downRegistry struct{}

func (downRegistry) Register(context.Context, string) error {
	return fmt.Errorf("register: %w: %w", registry.ErrStoreUnavailable, errors.New("connection refused"))
}
func (downRegistry) Count(context.Context) (int, error) { return 0, registry.ErrStoreUnavailable }
func (downRegistry) Ping(context.Context) error         { return registry.ErrStoreUnavailable }

type staticStats struct{}

func (staticStats) Stats() poller.Stats { return poller.Stats{Polls: 3, Mode: poller.ModeEdge} }

func testConfig() *config.Config {
	return &config.Config{
		TargetParticipant: config.DefaultTarget,
		OpenMarker:        config.DefaultOpenMarker,
		RegistryDriver:    "memory",
		CORSAllowOrigins:  []string{"*"},
		RateLimitEnabled:  false,
		RateLimitRequests: 30,
		RateLimitWindow:   time.Minute,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestPing(t *testing.T) {
	t.Parallel()
	r := NewRouter(registry.NewMemory(), nil, testConfig(), nil)

	rec, body := do(t, r, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Server is reachable!", body["message"])

	ts, ok := body["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, ts)
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(ts, "Z"))
	assert.NotEmpty(t, rec.Header().Get("X-Process-Time"))
}

func TestRegisterDevice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "ok", body: `{"token":"fcm-token-1"}`, wantStatus: http.StatusOK},
		{name: "missing token", body: `{}`, wantStatus: http.StatusBadRequest, wantError: "Token is required"},
		{name: "empty token", body: `{"token":""}`, wantStatus: http.StatusBadRequest, wantError: "Token is required"},
		{name: "malformed json", body: `{"token":`, wantStatus: http.StatusBadRequest, wantError: "Token is required"},
		{name: "wrong type", body: `{"token":42}`, wantStatus: http.StatusBadRequest, wantError: "Token is required"},
		{
			name:       "too long",
			body:       fmt.Sprintf(`{"token":%q}`, strings.Repeat("a", registry.MaxIDLength+1)),
			wantStatus: http.StatusBadRequest,
			wantError:  "Token is too long",
		},
		{
			name:       "over body limit",
			body:       fmt.Sprintf(`{"token":%q}`, strings.Repeat("a", maxBodyBytes)),
			wantStatus: http.StatusBadRequest,
			wantError:  "Token is too long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg := registry.NewMemory()
			r := NewRouter(reg, nil, testConfig(), nil)

			rec, body := do(t, r, http.MethodPost, "/register-device", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			n, err := reg.Count(context.Background())
			require.NoError(t, err)

			if tt.wantError == "" {
				assert.Equal(t, map[string]any{"success": true}, body)
				assert.Equal(t, 1, n)
				return
			}
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantError, body["error"])
			assert.Zero(t, n, "rejected before the store")
		})
	}
}

func TestRegisterDevice_Idempotent(t *testing.T) {
	t.Parallel()
	reg := registry.NewMemory()
	r := NewRouter(reg, nil, testConfig(), nil)

	for i := 0; i < 3; i++ {
		rec, _ := do(t, r, http.MethodPost, "/register-device", `{"token":"same"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	n, err := reg.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegisterDevice_StoreUnavailable(t *testing.T) {
	t.Parallel()
	r := NewRouter(downRegistry{}, nil, testConfig(), nil)

	rec, body := do(t, r, http.MethodPost, "/register-device", `{"token":"abc"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "connection refused")
}

func TestHealth(t *testing.T) {
	t.Parallel()
	reg := registry.NewMemory()
	require.NoError(t, reg.Register(context.Background(), "a"))
	r := NewRouter(reg, staticStats{}, testConfig(), nil)

	rec, body := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["devices"])
	pollerStats, ok := body["poller"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), pollerStats["polls"])

	rec, body = do(t, r, http.MethodGet, "/health/db", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", body["registry"])
}

func TestHealthDB_Down(t *testing.T) {
	t.Parallel()
	r := NewRouter(downRegistry{}, nil, testConfig(), nil)

	rec, body := do(t, r, http.MethodGet, "/health/db", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])

	rec, body = do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, body, "devices")
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RateLimitEnabled = true
	cfg.RateLimitRequests = 4 // burst of 2
	cfg.RateLimitWindow = time.Hour
	r := NewRouter(registry.NewMemory(), nil, cfg, nil)

	for i := 0; i < 2; i++ {
		rec, _ := do(t, r, http.MethodGet, "/ping", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, body := do(t, r, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
	assert.Equal(t, "Too many requests", body["error"])
}

func TestUnknownMethod(t *testing.T) {
	t.Parallel()
	r := NewRouter(registry.NewMemory(), nil, testConfig(), nil)
	rec, _ := do(t, r, http.MethodGet, "/register-device", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
