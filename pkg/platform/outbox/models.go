package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a pending event in the outbox table. It is written in the same
// transaction as the state change it describes and published later.
type Entry struct {
	ID            uuid.UUID
	AggregateType string // "credential" or "issuer"
	AggregateID   string // credential id or issuer address
	EventType     string
	Payload       []byte // JSON-encoded event
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil until published
}

// IsPending returns true if this entry has not been processed yet.
func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// NewEntry creates an entry whose id matches the event it carries, so a
// republished entry can be deduplicated by consumers.
func NewEntry(eventID uuid.UUID, aggregateType, aggregateID, eventType string, payload []byte, at time.Time) *Entry {
	return &Entry{
		ID:            eventID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     at,
	}
}
