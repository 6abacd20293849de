package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/albapepper/ticketwatch/internal/registry"
)

// MaxProviderBatch is the most tokens FCM accepts in one multicast call.
const MaxProviderBatch = 500

// CodeTransportError marks recipients of a batch whose provider call failed
// as a whole.
const CodeTransportError = "transport-error"

// Lister is the part of the registry the dispatcher reads.
type Lister interface {
	ListAll(ctx context.Context) ([]registry.Recipient, error)
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Registry    Lister
	Provider    Provider
	BatchSize   int           // clamped to [1, MaxProviderBatch]
	Concurrency int           // concurrent provider calls; <1 means 1
	SendTimeout time.Duration // per provider call; 0 disables
	Logger      *slog.Logger
}

// Dispatcher broadcasts a message to every registered recipient.
type Dispatcher struct {
	registry    Lister
	provider    Provider
	batchSize   int
	concurrency int
	sendTimeout time.Duration
	logger      *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > MaxProviderBatch {
		cfg.BatchSize = MaxProviderBatch
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Dispatcher{
		registry:    cfg.Registry,
		provider:    cfg.Provider,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		sendTimeout: cfg.SendTimeout,
		logger:      cfg.Logger,
	}
}

// Broadcast sends msg to every recipient in the registry.
//
// The only error returned is a failure to read the registry. Provider
// failures, whole-batch or per-recipient, are recorded in the result and
// never stop the remaining batches.
func (d *Dispatcher) Broadcast(ctx context.Context, msg Message) (*BatchResult, error) {
	start := time.Now()

	recipients, err := d.registry.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}

	ids := registry.IDs(recipients)
	if len(ids) == 0 {
		d.logger.Warn("No device tokens registered, nothing to send")
		result := newBatchResult(0, 0)
		result.Duration = time.Since(start)
		return result, nil
	}

	batches := Partition(ids, d.batchSize)
	result := newBatchResult(len(ids), len(batches))
	log := d.logger.With("broadcast_id", result.ID.String())

	log.Info("Sending notifications",
		"devices", len(ids), "batches", len(batches), "provider", d.provider.Name())

	// Each goroutine owns result.Batches[i]; nothing else writes there.
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			out := d.sendBatch(ctx, i, batch, msg)
			result.Batches[i] = out
			logBatch(log, out)
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	log.Info("Broadcast complete", "summary", result.Summary())
	return result, nil
}

func (d *Dispatcher) sendBatch(ctx context.Context, index int, tokens []string, msg Message) BatchOutcome {
	out := BatchOutcome{Index: index, Size: len(tokens)}

	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	results, err := d.provider.Send(ctx, tokens, msg)
	if err != nil {
		out.Err = err.Error()
		out.FailureCount = len(tokens)
		out.Failures = make([]Failure, len(tokens))
		for i, tok := range tokens {
			out.Failures[i] = Failure{RecipientID: tok, Code: CodeTransportError, Message: err.Error()}
		}
		return out
	}

	// Results are positional. A short response counts the tail as failed.
	for i, tok := range tokens {
		if i >= len(results) {
			out.FailureCount++
			out.Failures = append(out.Failures, Failure{
				RecipientID: tok, Code: CodeMissingResult, Message: "provider returned no result for token",
			})
			continue
		}
		r := results[i]
		if r.Success {
			out.SuccessCount++
			continue
		}
		out.FailureCount++
		out.Failures = append(out.Failures, Failure{RecipientID: tok, Code: r.ErrorCode, Message: r.ErrorMessage})
	}
	return out
}

func logBatch(log *slog.Logger, out BatchOutcome) {
	n := out.Index + 1
	if out.Err != "" {
		log.Error("batch send failed", "batch", n, "size", out.Size, "error", out.Err)
		return
	}
	log.Info("batch sent", "batch", n, "size", out.Size,
		"success", out.SuccessCount, "failure", out.FailureCount)
	for _, f := range out.Failures {
		log.Warn("delivery failed", "batch", n, "token", tokenPrefix(f.RecipientID),
			"code", f.Code, "message", f.Message)
	}
}

// tokenPrefix keeps device tokens out of logs.
func tokenPrefix(tok string) string {
	const n = 12
	if len(tok) <= n {
		return tok
	}
	return tok[:n] + "..."
}
