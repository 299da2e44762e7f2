package events

import "time"

// EventType identifies the kind of enforcement lifecycle event.
type EventType string

const (
	EventEnforceStart      EventType = "enforce.start"
	EventEnforceValidated  EventType = "enforce.validated"
	EventEnforceRegenerate EventType = "enforce.regenerate"
	EventEnforcePassed     EventType = "enforce.passed"
	EventEnforceFailed     EventType = "enforce.failed"
	EventEnforceError      EventType = "enforce.error"
)

// Event is a single lifecycle event of an enforcement run.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id,omitempty"`
	PackKey   string        `json:"pack_key,omitempty"`
	Attempt   int           `json:"attempt,omitempty"`
	Data      any           `json:"data,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// NewEvent creates a new Event with the current timestamp.
func NewEvent(typ EventType, runID, packKey string, data any) Event {
	return Event{
		Type:      typ,
		Timestamp: time.Now(),
		RunID:     runID,
		PackKey:   packKey,
		Data:      data,
	}
}
