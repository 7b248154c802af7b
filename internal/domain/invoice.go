package domain

import (
	"time"

	"github.com/google/uuid"

	customError "github.com/courseflow/reconciliation-engine/pkg/errors"
	"github.com/courseflow/reconciliation-engine/pkg/money"
)

// Approval statuses
const (
	ApprovalStatusPending  = "pending_approval"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
)

// Payment statuses. Overdue is a derived label, never stored.
const (
	PaymentStatusUnbilled  = "unbilled"
	PaymentStatusPending   = "pending"
	PaymentStatusSubmitted = "payment_submitted"
	PaymentStatusPaid      = "paid"
)

// Invoice is the receivable for one course billed to one organization.
// Line items arrive precomputed from the pricing collaborator; the engine
// never edits them. AmountPaid is a projection over verified payments and
// is recomputed, never hand-mutated.
type Invoice struct {
	ID              uuid.UUID   `json:"id"`
	OrganizationID  uuid.UUID   `json:"organization_id"`
	CourseReference string      `json:"course_reference"`
	IssuedAt        time.Time   `json:"issued_at"`
	DueAt           time.Time   `json:"due_at"`
	BaseCost        money.Money `json:"base_cost"`
	TaxAmount       money.Money `json:"tax_amount"`
	AmountPaid      money.Money `json:"amount_paid"`
	ApprovalStatus  string      `json:"approval_status"`
	PaymentStatus   string      `json:"payment_status"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Total is base cost plus tax.
func (i *Invoice) Total() money.Money {
	return i.BaseCost.Add(i.TaxAmount)
}

// BalanceDue is total minus verified payments.
func (i *Invoice) BalanceDue() money.Money {
	return i.Total().Sub(i.AmountPaid)
}

// IsOverdue reports the derived overdue label: not yet paid and past due.
func (i *Invoice) IsOverdue(now time.Time) bool {
	return i.PaymentStatus != PaymentStatusPaid && now.After(i.DueAt)
}

// IsPosted reports whether the invoice has been made visible to the
// organization. Only posted invoices can accept payments.
func (i *Invoice) IsPosted() bool {
	return i.ApprovalStatus == ApprovalStatusApproved && i.PaymentStatus != PaymentStatusUnbilled
}

// IsReceivable reports whether the invoice still counts toward the
// organization's open receivables.
func (i *Invoice) IsReceivable() bool {
	return i.IsPosted() && i.BalanceDue().IsPositive()
}

// Approve moves the invoice out of the approval queue.
func (i *Invoice) Approve() error {
	if i.ApprovalStatus != ApprovalStatusPending {
		return customError.WrapInvalidTransition("invoice", i.ApprovalStatus, "approve")
	}
	i.ApprovalStatus = ApprovalStatusApproved
	return nil
}

// Reject permanently excludes the invoice from receivables.
func (i *Invoice) Reject(reason string) error {
	if i.ApprovalStatus != ApprovalStatusPending {
		return customError.WrapInvalidTransition("invoice", i.ApprovalStatus, "reject")
	}
	i.ApprovalStatus = ApprovalStatusRejected
	i.RejectionReason = reason
	return nil
}

// PostToOrganization makes an approved invoice visible and payable.
// Notification of the organization is the caller's concern.
func (i *Invoice) PostToOrganization() error {
	if i.ApprovalStatus != ApprovalStatusApproved || i.PaymentStatus != PaymentStatusUnbilled {
		return customError.WrapInvalidTransition("invoice", i.ApprovalStatus+"/"+i.PaymentStatus, "post")
	}
	i.PaymentStatus = PaymentStatusPending
	return nil
}

// MarkAsPaid is manual administrative closure for out-of-band settlements.
// It is independent of the payment verification flow but still requires a
// zero balance.
func (i *Invoice) MarkAsPaid() error {
	if i.PaymentStatus == PaymentStatusPaid {
		return customError.WrapInvalidTransition("invoice", i.PaymentStatus, "mark_as_paid")
	}
	if i.BalanceDue().IsPositive() {
		return customError.WrapBalanceNotZero(i.ID.String(), i.BalanceDue().String())
	}
	i.PaymentStatus = PaymentStatusPaid
	return nil
}

// SettleAgainst recomputes AmountPaid as a fold over the invoice's payments
// filtered to verified, then derives PaymentStatus from the result. This is
// the only way AmountPaid ever changes.
func (i *Invoice) SettleAgainst(payments []*Payment) {
	paid := money.Zero(i.BaseCost.Currency)
	awaiting := false
	for _, p := range payments {
		switch p.State {
		case PaymentStateVerified:
			paid = paid.Add(p.Amount)
		case PaymentStateSubmitted, PaymentStatePendingVerification:
			awaiting = true
		}
	}
	i.AmountPaid = paid

	switch {
	case !i.BalanceDue().IsPositive():
		i.PaymentStatus = PaymentStatusPaid
	case awaiting:
		i.PaymentStatus = PaymentStatusSubmitted
	default:
		i.PaymentStatus = PaymentStatusPending
	}
}

// DTOs for requests and responses

type CreateInvoiceRequest struct {
	OrganizationID  uuid.UUID `json:"organization_id" validate:"required"`
	CourseReference string    `json:"course_reference" validate:"required"`
	IssuedAt        time.Time `json:"issued_at" validate:"required"`
	DueAt           time.Time `json:"due_at" validate:"required"`
	BaseCostCents   int64     `json:"base_cost_cents" validate:"gte=0"`
	TaxAmountCents  int64     `json:"tax_amount_cents" validate:"gte=0"`
	Currency        string    `json:"currency"`
}

type RejectInvoiceRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type InvoiceResponse struct {
	Invoice   *Invoice `json:"invoice"`
	IsOverdue bool     `json:"is_overdue"`
}

// NewInvoiceResponse attaches the derived overdue label to an invoice.
func NewInvoiceResponse(inv *Invoice, now time.Time) *InvoiceResponse {
	return &InvoiceResponse{Invoice: inv, IsOverdue: inv.IsOverdue(now)}
}
