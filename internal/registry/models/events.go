package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "credregistry/pkg/domain"
	"credregistry/pkg/platform/outbox"
)

// EventType names a registry state change.
type EventType string

const (
	EventIssuerAuthorized  EventType = "issuer_authorized"
	EventIssuerRevoked     EventType = "issuer_revoked"
	EventCredentialIssued  EventType = "credential_issued"
	EventCredentialRevoked EventType = "credential_revoked"
)

// Event is one entry of the registry's append-only history.
type Event struct {
	ID               uuid.UUID       `json:"id"`
	Type             EventType       `json:"type"`
	CredentialID     id.CredentialID `json:"credential_id,omitempty"`
	Issuer           id.Address      `json:"issuer,omitempty"`
	Owner            id.Address      `json:"owner,omitempty"`
	Organization     string          `json:"organization,omitempty"`
	VerificationCode string          `json:"verification_code,omitempty"`
	Actor            id.Address      `json:"actor"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// AggregateType groups events for the outbox: issuer events by address,
// credential events by id.
func (e *Event) AggregateType() string {
	if e.CredentialID.IsNil() {
		return "issuer"
	}
	return "credential"
}

// AggregateID is the partitioning key of the event.
func (e *Event) AggregateID() string {
	if e.CredentialID.IsNil() {
		return e.Issuer.String()
	}
	return e.CredentialID.String()
}

func IssuerAuthorized(actor id.Address, issuer *Issuer, at time.Time) *Event {
	return &Event{
		ID:           uuid.New(),
		Type:         EventIssuerAuthorized,
		Issuer:       issuer.Address,
		Organization: issuer.Organization,
		Actor:        actor,
		OccurredAt:   at,
	}
}

func IssuerRevoked(actor id.Address, issuer id.Address, at time.Time) *Event {
	return &Event{
		ID:         uuid.New(),
		Type:       EventIssuerRevoked,
		Issuer:     issuer,
		Actor:      actor,
		OccurredAt: at,
	}
}

func CredentialIssued(c *Credential) *Event {
	return &Event{
		ID:               uuid.New(),
		Type:             EventCredentialIssued,
		CredentialID:     c.ID,
		Issuer:           c.Issuer,
		Owner:            c.Owner,
		Organization:     c.IssuerOrganization,
		VerificationCode: c.VerificationCode,
		Actor:            c.Issuer,
		OccurredAt:       c.IssuedAt,
	}
}

func CredentialRevoked(actor id.Address, c *Credential, at time.Time) *Event {
	return &Event{
		ID:           uuid.New(),
		Type:         EventCredentialRevoked,
		CredentialID: c.ID,
		Issuer:       c.Issuer,
		Owner:        c.Owner,
		Actor:        actor,
		OccurredAt:   at,
	}
}

// ToOutboxEntry encodes the event for publication.
func (e *Event) ToOutboxEntry() (*outbox.Entry, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return outbox.NewEntry(e.ID, e.AggregateType(), e.AggregateID(), string(e.Type), payload, e.OccurredAt), nil
}
