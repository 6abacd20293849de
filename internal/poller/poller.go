// Package poller runs one fetch-evaluate-dispatch cycle per call.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/ticketwatch/internal/feed"
	"github.com/albapepper/ticketwatch/internal/notifications"
)

// Mode selects when a positive poll leads to a broadcast.
type Mode string

const (
	// ModeEdge broadcasts only when the feed goes from not-open to open.
	ModeEdge Mode = "edge"
	// ModeLevel broadcasts on every poll that finds the feed open.
	ModeLevel Mode = "level"
)

// ParseMode maps a config value to a Mode. Unknown values default to edge.
func ParseMode(s string) Mode {
	if Mode(s) == ModeLevel {
		return ModeLevel
	}
	return ModeEdge
}

// ErrNothingDelivered is reported when a broadcast reached recipients but
// every one of them failed.
var ErrNothingDelivered = errors.New("no recipient reached")

type Fetcher interface {
	Fetch(ctx context.Context) (*feed.Snapshot, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, msg notifications.Message) (*notifications.BatchResult, error)
}

// Config wires a Poller.
type Config struct {
	Fetcher     Fetcher
	Trigger     feed.Trigger
	Broadcaster Broadcaster
	Message     notifications.Message
	Mode        Mode
	Logger      *slog.Logger

	// FetchTimeout bounds the feed fetch only. A broadcast is never cut
	// short by the poll's deadline; each batch has its own send timeout.
	FetchTimeout time.Duration
}

// Outcome describes a single poll.
type Outcome struct {
	Open   bool
	Event  feed.Event
	Sent   bool
	Result *notifications.BatchResult
	Err    error // fetch or broadcast error, already logged
}

// Stats are cumulative counters since start.
type Stats struct {
	Polls         int64     `json:"polls"`
	FetchFailures int64     `json:"fetch_failures"`
	Matches       int64     `json:"matches"`
	Broadcasts    int64     `json:"broadcasts"`
	LastPollAt    time.Time `json:"last_poll_at"`
	LastOpen      bool      `json:"last_open"`
	Mode          Mode      `json:"mode"`
}

// Poller evaluates the feed and triggers broadcasts. Safe for concurrent use.
type Poller struct {
	fetcher     Fetcher
	trigger     feed.Trigger
	broadcaster Broadcaster
	message     notifications.Message
	mode        Mode
	logger      *slog.Logger
	fetchTO     time.Duration

	mu       sync.Mutex
	lastOpen bool
	stats    Stats
}

func New(cfg Config) *Poller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeEdge
	}
	return &Poller{
		fetcher:     cfg.Fetcher,
		trigger:     cfg.Trigger,
		broadcaster: cfg.Broadcaster,
		message:     cfg.Message,
		mode:        cfg.Mode,
		logger:      cfg.Logger,
		fetchTO:     cfg.FetchTimeout,
		stats:       Stats{Mode: cfg.Mode},
	}
}

// PollOnce runs one cycle. Failures are logged, never returned.
func (p *Poller) PollOnce(ctx context.Context) {
	_ = p.Poll(ctx)
}

// Poll runs one cycle and reports what happened.
func (p *Poller) Poll(ctx context.Context) Outcome {
	p.logger.Info("Fetching feed")

	snap, err := p.fetch(ctx)

	p.mu.Lock()
	p.stats.Polls++
	p.stats.LastPollAt = time.Now()
	if err != nil {
		p.stats.FetchFailures++
		p.mu.Unlock()
		p.logger.Warn("feed fetch failed", "error", err)
		return Outcome{Err: err}
	}

	ev, open := p.trigger.Match(snap)
	wasOpen := p.lastOpen
	p.lastOpen = open
	p.stats.LastOpen = open
	if open {
		p.stats.Matches++
	}
	p.mu.Unlock()

	p.logger.Info("feed evaluated", "events", len(snap.Events), "open", open)
	out := Outcome{Open: open, Event: ev}
	if !open {
		return out
	}
	if p.mode == ModeEdge && wasOpen {
		p.logger.Debug("booking still open, already notified")
		return out
	}

	p.logger.Info("Booking open, broadcasting",
		"participant_a", ev.ParticipantA, "participant_b", ev.ParticipantB, "event", ev.Name)

	bctx, cancel := withoutDeadline(ctx)
	defer cancel()

	res, err := p.broadcaster.Broadcast(bctx, p.message)
	if err == nil && res != nil && res.Recipients > 0 && res.SuccessCount() == 0 {
		err = fmt.Errorf("%w: %d failed", ErrNothingDelivered, res.FailureCount())
		out.Result = res
	}
	if err != nil {
		// Re-arm so the next positive poll retries the broadcast.
		p.mu.Lock()
		p.lastOpen = false
		p.mu.Unlock()
		p.logger.Error("broadcast failed", "error", err)
		out.Err = fmt.Errorf("broadcast: %w", err)
		return out
	}

	p.mu.Lock()
	p.stats.Broadcasts++
	p.mu.Unlock()

	out.Sent = true
	out.Result = res
	return out
}

func (p *Poller) fetch(ctx context.Context) (*feed.Snapshot, error) {
	if p.fetchTO > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.fetchTO)
		defer cancel()
	}
	return p.fetcher.Fetch(ctx)
}

// withoutDeadline returns a context that ignores ctx's deadline but is still
// cancelled when ctx is cancelled for any other reason, such as shutdown.
func withoutDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	out, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cancel(context.Cause(ctx))
		}
	})
	return out, func() {
		stop()
		cancel(nil)
	}
}

// Stats returns a copy of the counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
