package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	maxBodyBytes   = 4 << 20
	errBodyPreview = 200
)

// ClientConfig configures a feed Client.
type ClientConfig struct {
	URL               string
	UserAgent         string
	Timeout           time.Duration // per request; default 15s
	RequestsPerMinute int           // <= 0 disables the limiter
	HTTPClient        *http.Client  // optional, overrides Timeout
	Logger            *slog.Logger
}

// Client polls the event feed. Requests go through a token bucket limiter
// and a circuit breaker that opens after five consecutive failures.
type Client struct {
	httpClient *http.Client
	url        string
	userAgent  string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*Snapshot]
	logger     *slog.Logger
}

// NewClient creates a feed client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	c := &Client{
		httpClient: httpClient,
		url:        cfg.URL,
		userAgent:  cfg.UserAgent,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     cfg.Logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[*Snapshot](gobreaker.Settings{
		Name:        "feed",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Feed circuit breaker state change",
				"name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// URL returns the polled endpoint.
func (c *Client) URL() string { return c.url }

// Fetch performs one rate-limited GET and decodes the snapshot. Every
// failure is returned as a *FetchError.
func (c *Client) Fetch(ctx context.Context) (*Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: c.url, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	snap, err := c.breaker.Execute(func() (*Snapshot, error) {
		return c.get(ctx)
	})
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		// gobreaker.ErrOpenState / ErrTooManyRequests
		return nil, &FetchError{URL: c.url, Err: err}
	}
	return snap, nil
}

func (c *Client) get(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: fmt.Errorf("create request: %w", err)}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: c.url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: c.url, StatusCode: resp.StatusCode, Body: truncate(body, errBodyPreview)}
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, &FetchError{URL: c.url, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	c.logger.Debug("feed fetched", "events", len(snap.Events), "bytes", len(body))
	return &snap, nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
