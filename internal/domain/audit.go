package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audited entity types
const (
	AuditEntityInvoice = "invoice"
	AuditEntityPayment = "payment"
)

// AuditEntry records one state transition. The log is append-only and is
// sufficient to reconstruct an invoice's amount_paid independently.
type AuditEntry struct {
	ID         uuid.UUID `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	Actor      string    `json:"actor"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewAuditEntry builds a transition record.
func NewAuditEntry(entityType string, entityID uuid.UUID, actor, from, to, reason string) *AuditEntry {
	return &AuditEntry{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		FromState:  from,
		ToState:    to,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
