// Package events carries ledger events from successful mutations to the
// event log and to connected websocket clients. Events go through asynq when
// Redis is configured and are processed inline otherwise.
package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	// TaskType is the asynq task type for ledger events.
	TaskType = "ledger:event"

	// Channel is the pub/sub channel processed events are republished on.
	Channel = "ledger:events"
)

// Type names what happened on the ledger.
type Type string

const (
	LCCreated        Type = "lc.created"
	StatusUpdated    Type = "lc.status_updated"
	DocumentUploaded Type = "lc.document_uploaded"
	UserRegistered   Type = "user.registered"
)

// Event is one successful ledger mutation.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	ShipmentID string    `json:"shipmentId,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Message    string    `json:"message,omitempty"`
	Status     string    `json:"status,omitempty"`
	At         time.Time `json:"at"`
}

// New builds an event with a fresh id and the current time.
func New(t Type, shipmentID, actor, message string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		ShipmentID: shipmentID,
		Actor:      actor,
		Message:    message,
		At:         time.Now().UTC(),
	}
}
