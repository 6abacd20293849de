package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
)

// CodeMissingResult is recorded when a provider response is shorter than the
// batch it was sent.
const CodeMissingResult = "missing-result"

// SendResult is the per-token outcome of one provider call, positionally
// aligned with the tokens passed to Send.
type SendResult struct {
	Token        string
	Success      bool
	MessageID    string
	ErrorCode    string
	ErrorMessage string
}

// Provider delivers one batch. A returned error means the whole call failed;
// otherwise per-token outcomes are in the slice.
type Provider interface {
	Name() string
	Send(ctx context.Context, tokens []string, msg Message) ([]SendResult, error)
}

// NewProvider returns an FCM provider when credentials are configured and a
// logging dry-run provider otherwise.
func NewProvider(ctx context.Context, credentials string, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if credentials == "" {
		logger.Warn("No Firebase credentials configured, notifications will only be logged")
		return NewLogProvider(logger), nil
	}
	p, err := NewFCMProvider(ctx, credentials)
	if err != nil {
		return nil, fmt.Errorf("init fcm: %w", err)
	}
	return p, nil
}

// LogProvider logs sends instead of delivering them. Every token succeeds.
type LogProvider struct {
	logger *slog.Logger
}

func NewLogProvider(logger *slog.Logger) *LogProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Name() string { return "log" }

func (p *LogProvider) Send(ctx context.Context, tokens []string, msg Message) ([]SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.logger.Info("push send (dry run)",
		"tokens", len(tokens), "title", msg.Title, "body", msg.Body)

	out := make([]SendResult, len(tokens))
	for i, tok := range tokens {
		out[i] = SendResult{Token: tok, Success: true, MessageID: "dry-run-" + strconv.Itoa(i)}
	}
	return out, nil
}
