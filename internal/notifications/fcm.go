package notifications

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// multicastClient is the slice of *messaging.Client the provider uses.
type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMProvider delivers through Firebase Cloud Messaging.
type FCMProvider struct {
	client multicastClient
}

// NewFCMProvider initializes a Firebase app from service account credentials.
// credentials is either a path to the JSON key file or the JSON itself.
func NewFCMProvider(ctx context.Context, credentials string) (*FCMProvider, error) {
	var opt option.ClientOption
	if strings.HasPrefix(strings.TrimSpace(credentials), "{") {
		opt = option.WithCredentialsJSON([]byte(credentials))
	} else {
		opt = option.WithCredentialsFile(credentials)
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging client: %w", err)
	}
	return &FCMProvider{client: client}, nil
}

func (p *FCMProvider) Name() string { return "fcm" }

func (p *FCMProvider) Send(ctx context.Context, tokens []string, msg Message) ([]SendResult, error) {
	resp, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("send multicast: %w", err)
	}

	out := make([]SendResult, 0, len(resp.Responses))
	for i, r := range resp.Responses {
		if i >= len(tokens) {
			break
		}
		res := SendResult{Token: tokens[i], Success: r.Success, MessageID: r.MessageID}
		if !r.Success {
			res.ErrorCode = errorCode(r.Error)
			if r.Error != nil {
				res.ErrorMessage = r.Error.Error()
			}
		}
		out = append(out, res)
	}
	return out, nil
}

var fcmErrorCodes = []struct {
	match func(error) bool
	code  string
}{
	{messaging.IsUnregistered, "messaging/registration-token-not-registered"},
	{messaging.IsInvalidArgument, "messaging/invalid-argument"},
	{messaging.IsSenderIDMismatch, "messaging/mismatched-credential"},
	{messaging.IsQuotaExceeded, "messaging/message-rate-exceeded"},
	{messaging.IsThirdPartyAuthError, "messaging/third-party-auth-error"},
	{messaging.IsUnavailable, "messaging/server-unavailable"},
	{messaging.IsInternal, "messaging/internal-error"},
}

func errorCode(err error) string {
	if err == nil {
		return "messaging/unknown-error"
	}
	for _, c := range fcmErrorCodes {
		if c.match(err) {
			return c.code
		}
	}
	return "messaging/unknown-error"
}
