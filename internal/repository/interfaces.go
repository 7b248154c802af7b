package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/courseflow/reconciliation-engine/internal/domain"
)

// UnitOfWork runs fn inside one database transaction. Repository calls made
// with the ctx passed to fn join that transaction, so a command's validate
// and commit are never observable half-done.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// InvoiceRepository defines the interface for invoice data operations
type InvoiceRepository interface {
	// Create persists a new invoice
	Create(ctx context.Context, invoice *domain.Invoice) error

	// GetByID retrieves an invoice by id
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)

	// ListByOrganization retrieves an organization's invoices ordered by issued_at, id
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*domain.Invoice, error)

	// Update persists status and amount_paid changes
	Update(ctx context.Context, invoice *domain.Invoice) error

	// ListOverdue retrieves posted, unpaid invoices past due as of now
	ListOverdue(ctx context.Context, now time.Time) ([]*domain.Invoice, error)
}

// PaymentRepository defines the interface for payment data operations
type PaymentRepository interface {
	// Create persists a new payment record
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by id
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)

	// ListByInvoice retrieves the full payment history for an invoice
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*domain.Payment, error)

	// GetByIdempotencyKey retrieves a payment by its idempotency key
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)

	// UpdateState persists a payment's state and reason
	UpdateState(ctx context.Context, payment *domain.Payment) error
}

// AuditRepository appends state transition records
type AuditRepository interface {
	// Create appends an audit entry
	Create(ctx context.Context, entry *domain.AuditEntry) error

	// ListByEntity retrieves the transition history for one entity
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*domain.AuditEntry, error)
}
