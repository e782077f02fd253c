package models

import "time"

// Event types recorded in the audit log.
const (
	EventCommandSent      = "COMMAND_SENT"
	EventCommandConfirmed = "COMMAND_CONFIRMED"
	EventCommandFailed    = "COMMAND_FAILED"
	EventCycleError       = "CYCLE_ERROR"
)

// Event is a single audit log entry: command lifecycle transitions and
// reconciliation cycle failures.
type Event struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // COMMAND_SENT | COMMAND_CONFIRMED | COMMAND_FAILED | CYCLE_ERROR
	DeviceID    string    `json:"device_id,omitempty"`
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
