package storage

import "time"

// Event is one transcript append, recorded for diagnostics.
// Events are never loaded back into live sessions.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Model     string    `json:"model,omitempty"`
}

// Recorder abstracts persistence of transcript events.
// LoadEvents returns events in the order they were appended.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendEvent(event Event) error
	LoadEvents() ([]Event, error)
}
