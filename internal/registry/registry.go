// Package registry stores the devices that asked to be told when ticket sales
// open. Each device is keyed by its push token; registering the same token
// twice leaves a single record.
//
// Drivers: postgres (pgx), redis (sorted set), sqlite (modernc) and memory.
// Concurrency control is delegated to the backing store.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxIDLength bounds recipient IDs. FCM tokens are ~160 bytes; the bound
// stays under the Postgres btree entry limit for the primary key.
const MaxIDLength = 2048

var (
	// ErrInvalidID is returned for empty or oversized recipient IDs.
	ErrInvalidID = errors.New("invalid recipient id")
	// ErrStoreUnavailable wraps any failure of the backing store.
	ErrStoreUnavailable = errors.New("recipient store unavailable")
)

// Recipient is a registered device endpoint.
type Recipient struct {
	ID           string
	RegisteredAt time.Time
}

// Registry is the recipient store used by the API and the dispatcher.
type Registry interface {
	// Register inserts or confirms a recipient. Idempotent.
	Register(ctx context.Context, id string) error
	// ListAll returns every registered recipient, oldest registration first.
	ListAll(ctx context.Context) ([]Recipient, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// ValidateID checks an untrusted recipient ID. Only emptiness and length are
// enforced; the content is opaque.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidID, len(id), MaxIDLength)
	}
	return nil
}

// IDs extracts the identifiers in order.
func IDs(recipients []Recipient) []string {
	ids := make([]string, len(recipients))
	for i, r := range recipients {
		ids[i] = r.ID
	}
	return ids
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
