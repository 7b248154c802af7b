package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types the engine emits. Delivery (email, toast) belongs to the
// notification collaborator, not here.
const (
	EventPaymentVerified = "payment.verified"
	EventPaymentReversed = "payment.reversed"
	EventInvoicePosted   = "invoice.posted"
	EventInvoicePaid     = "invoice.paid"
	EventInvoiceOverdue  = "invoice.overdue"
)

// Event is one domain fact, published after the owning command commits.
type Event struct {
	Type           string    `json:"type"`
	InvoiceID      uuid.UUID `json:"invoice_id"`
	PaymentID      uuid.UUID `json:"payment_id,omitempty"`
	OrganizationID uuid.UUID `json:"organization_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}
