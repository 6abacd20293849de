// Package notifications fans a single push message out to every registered
// device, in provider-sized batches.
package notifications

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TypeBookingOpened is the data.type value clients switch on.
const TypeBookingOpened = "BOOKING_OPENED"

// Message is the payload delivered to every recipient of a broadcast.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// NewBookingOpened builds the booking-open alert.
func NewBookingOpened(title, body, matchDetails string) Message {
	return Message{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":         TypeBookingOpened,
			"matchDetails": matchDetails,
		},
	}
}

// Failure records one recipient the provider did not deliver to.
type Failure struct {
	RecipientID string `json:"recipient_id"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// BatchOutcome is the result of one provider call.
type BatchOutcome struct {
	Index        int       `json:"index"`
	Size         int       `json:"size"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	Failures     []Failure `json:"failures,omitempty"`
	Err          string    `json:"error,omitempty"` // set when the whole call failed
}

// BatchResult aggregates a full broadcast.
type BatchResult struct {
	ID         uuid.UUID      `json:"id"`
	Recipients int            `json:"recipients"`
	Batches    []BatchOutcome `json:"batches"`
	Duration   time.Duration  `json:"duration"`
}

func newBatchResult(recipients, batches int) *BatchResult {
	return &BatchResult{
		ID:         uuid.New(),
		Recipients: recipients,
		Batches:    make([]BatchOutcome, batches),
	}
}

func (r *BatchResult) SuccessCount() int {
	n := 0
	for _, b := range r.Batches {
		n += b.SuccessCount
	}
	return n
}

func (r *BatchResult) FailureCount() int {
	n := 0
	for _, b := range r.Batches {
		n += b.FailureCount
	}
	return n
}

// Summary returns a human-readable summary.
func (r *BatchResult) Summary() string {
	return fmt.Sprintf(
		"id=%s recipients=%d batches=%d succeeded=%d failed=%d dur=%s",
		r.ID, r.Recipients, len(r.Batches), r.SuccessCount(), r.FailureCount(),
		r.Duration.Round(time.Millisecond))
}
