// Package feed fetches the ticketing event list and decides whether sales
// for the tracked match have opened.
package feed

import (
	"fmt"
	"net/http"
)

// Event is one entry of the feed's result list. Only the participant and
// status fields drive the trigger; name and date are kept for logs.
type Event struct {
	ParticipantA string `json:"team_1"`
	ParticipantB string `json:"team_2"`
	StatusLabel  string `json:"event_Button_Text"`
	Name         string `json:"event_Name,omitempty"`
	Date         string `json:"event_Date,omitempty"`
}

// Snapshot is one decoded poll response. A missing or null result list
// decodes to no events.
type Snapshot struct {
	Events []Event `json:"result"`
}

// FetchError describes a failed poll: transport, non-2xx status or
// undecodable body.
type FetchError struct {
	URL        string
	StatusCode int    // 0 when no response was received
	Body       string // truncated response body, if any
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("feed %s returned %d: %s", e.URL, e.StatusCode, e.Body)
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("feed %s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	case e.StatusCode != 0:
		return fmt.Sprintf("feed %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("feed %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }
