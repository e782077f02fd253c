package models

import "time"

// CommandStatus tracks one in-flight wire command.
type CommandStatus string

const (
	CommandSent      CommandStatus = "SENT"
	CommandConfirmed CommandStatus = "CONFIRMED"
	CommandFailed    CommandStatus = "FAILED"
)

// Command is the explicit record of one wire command issued to a unit.
// The registry's optimistic update happens only on the Confirmed
// transition; a Failed command never changes displayed state.
type Command struct {
	ID          string        `json:"id"`
	DeviceID    string        `json:"device_id"`
	Fields      RawFields     `json:"fields"`
	Status      CommandStatus `json:"status"`
	SentAt      time.Time     `json:"sent_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
}

// Confirm marks the command delivered.
func (c *Command) Confirm(at time.Time) {
	c.Status = CommandConfirmed
	c.CompletedAt = at.UTC()
}

// Fail marks the command undelivered.
func (c *Command) Fail(at time.Time) {
	c.Status = CommandFailed
	c.CompletedAt = at.UTC()
}
