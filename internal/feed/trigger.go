package feed

// Trigger decides whether a snapshot shows the tracked match on sale.
type Trigger struct {
	TargetParticipant string
	OpenMarker        string
}

// Match returns the first event whose second participant and status label
// equal the trigger's values exactly. Comparison is case-sensitive with no
// trimming.
func (t Trigger) Match(s *Snapshot) (Event, bool) {
	if s == nil {
		return Event{}, false
	}
	for _, ev := range s.Events {
		if ev.ParticipantB == t.TargetParticipant && ev.StatusLabel == t.OpenMarker {
			return ev, true
		}
	}
	return Event{}, false
}
