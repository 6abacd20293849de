package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/ticketwatch/internal/config"
	"github.com/albapepper/ticketwatch/internal/feed"
	"github.com/albapepper/ticketwatch/internal/notifications"
	"github.com/albapepper/ticketwatch/internal/poller"
	"github.com/albapepper/ticketwatch/internal/registry"
	"github.com/albapepper/ticketwatch/internal/scheduler"
)

func baseConfig(feedURL string) *config.Config {
	return &config.Config{
		FeedURL:            feedURL,
		FeedTimeout:        2 * time.Second,
		TargetParticipant:  config.DefaultTarget,
		OpenMarker:         config.DefaultOpenMarker,
		PollSchedule:       config.DefaultPollSchedule,
		PollOverlap:        "skip",
		PollTimeout:        5 * time.Second,
		NotifyMode:         "edge",
		NotifyTitle:        config.DefaultNotifyTitle,
		NotifyBody:         config.DefaultNotifyBody,
		NotifyMatchDetails: config.DefaultMatchDetails,
		MaxBatchSize:       500,
		RegistryDriver:     "memory",
		RegistryTimeout:    time.Second,
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "v", line["k"])

	buf.Reset()
	NewLogger(&buf, "nonsense", "text").Info("info still logs")
	assert.Contains(t, buf.String(), "info still logs")
}

// End to end: an open feed with two registered devices produces one
// broadcast over the dry-run provider, then nothing while it stays open.
func TestBuild_PollBroadcasts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[{"team_1":"Royal Challengers Bengaluru","team_2":"Chennai Super Kings","event_Button_Text":"BUY TICKETS"}]}`))
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	a, err := Build(ctx, baseConfig(srv.URL), NewLogger(&bytes.Buffer{}, "error", "text"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, "log", a.Provider.Name())
	require.NoError(t, a.Registry.Register(ctx, "device-1"))
	require.NoError(t, a.Registry.Register(ctx, "device-2"))

	out := a.Poller.Poll(ctx)
	require.True(t, out.Sent)
	assert.Equal(t, 2, out.Result.SuccessCount())

	out = a.Poller.Poll(ctx)
	assert.True(t, out.Open)
	assert.False(t, out.Sent)
}

func TestBuild_BadSchedule(t *testing.T) {
	cfg := baseConfig("http://127.0.0.1:1")
	cfg.PollSchedule = "whenever"
	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "scheduler")
}

func TestMessage(t *testing.T) {
	m := Message(baseConfig(""))
	assert.Equal(t, "🚨 RCB vs CSK Match Alert!", m.Title)
	assert.Equal(t, "BOOKING_OPENED", m.Data["type"])
	assert.Equal(t, "RCB vs CSK", m.Data["matchDetails"])
}

type openFeed struct{}

func (openFeed) Fetch(ctx context.Context) (*feed.Snapshot, error) {
	return &feed.Snapshot{Events: []feed.Event{
		{ParticipantA: "Royal Challengers Bengaluru", ParticipantB: config.DefaultTarget, StatusLabel: config.DefaultOpenMarker},
	}}, ctx.Err()
}

// slowProvider takes delay per batch and fails only if its own context ends.
type slowProvider struct {
	delay     time.Duration
	calls     atomic.Int32
	delivered atomic.Int32
}

func (p *slowProvider) Name() string { return "slow" }

func (p *slowProvider) Send(ctx context.Context, tokens []string, _ notifications.Message) ([]notifications.SendResult, error) {
	p.calls.Add(1)
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	out := make([]notifications.SendResult, len(tokens))
	for i, tok := range tokens {
		out[i] = notifications.SendResult{Token: tok, Success: true}
	}
	p.delivered.Add(int32(len(tokens)))
	return out, nil
}

// A run timeout shorter than the whole broadcast must not starve later
// batches: every batch gets its own send timeout.
func TestScheduledPoll_BroadcastOutlivesRunTimeout(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewMemory()
	for i := range 1500 {
		require.NoError(t, reg.Register(ctx, fmt.Sprintf("device-%04d", i)))
	}

	provider := &slowProvider{delay: 40 * time.Millisecond}
	logger := NewLogger(&bytes.Buffer{}, "error", "text")
	dispatcher := notifications.NewDispatcher(notifications.DispatcherConfig{
		Registry:    reg,
		Provider:    provider,
		BatchSize:   500,
		Concurrency: 1,
		SendTimeout: time.Second,
		Logger:      logger,
	})
	p := poller.New(poller.Config{
		Fetcher:      openFeed{},
		Trigger:      feed.Trigger{TargetParticipant: config.DefaultTarget, OpenMarker: config.DefaultOpenMarker},
		Broadcaster:  dispatcher,
		Message:      Message(baseConfig("")),
		Mode:         poller.ModeEdge,
		Logger:       logger,
		FetchTimeout: time.Second,
	})
	sched, err := scheduler.New(p.PollOnce, scheduler.Config{
		Spec:    "@every 1h",
		Timeout: 60 * time.Millisecond,
		Logger:  logger,
	})
	require.NoError(t, err)

	require.True(t, sched.RunNow(ctx))

	assert.Equal(t, int32(3), provider.calls.Load())
	assert.Equal(t, int32(1500), provider.delivered.Load())
	assert.Equal(t, int64(1), p.Stats().Broadcasts)
}
