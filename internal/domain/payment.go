package domain

import (
	"time"

	"github.com/google/uuid"

	customError "github.com/courseflow/reconciliation-engine/pkg/errors"
	"github.com/courseflow/reconciliation-engine/pkg/money"
)

// Payment states. New submissions are recorded directly in
// pending_verification; submitted is the transient intake state and still
// counts as awaiting verification when settling.
const (
	PaymentStateSubmitted           = "submitted"
	PaymentStatePendingVerification = "pending_verification"
	PaymentStateVerified            = "verified"
	PaymentStateRejected            = "rejected"
	PaymentStateReversed            = "reversed"
)

// Payment methods
const (
	PaymentMethodCheck        = "check"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCreditCard   = "credit_card"
	PaymentMethodCash         = "cash"
	PaymentMethodOther        = "other"
)

// Payment is one submission against an invoice. Amount is immutable after
// creation; correcting an error means reverse and resubmit, never edit.
type Payment struct {
	ID              uuid.UUID   `json:"id"`
	InvoiceID       uuid.UUID   `json:"invoice_id"`
	Amount          money.Money `json:"amount"`
	Method          string      `json:"method"`
	ReferenceNumber string      `json:"reference_number,omitempty"`
	SubmittedAt     time.Time   `json:"submitted_at"`
	Notes           string      `json:"notes,omitempty"`
	State           string      `json:"state"`
	Reason          string      `json:"reason,omitempty"`
	IdempotencyKey  string      `json:"idempotency_key"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Verify confirms a submitted payment should count toward the ledger.
func (p *Payment) Verify() error {
	if p.State != PaymentStatePendingVerification {
		return customError.WrapInvalidTransition("payment", p.State, "verify")
	}
	p.State = PaymentStateVerified
	return nil
}

// Reject declines a submitted payment. The invoice ledger is untouched.
func (p *Payment) Reject(reason string) error {
	if p.State != PaymentStatePendingVerification {
		return customError.WrapInvalidTransition("payment", p.State, "reject")
	}
	p.State = PaymentStateRejected
	p.Reason = reason
	return nil
}

// Reverse undoes a verified payment's ledger effect. One-way exit; the
// audit record survives.
func (p *Payment) Reverse(reason string) error {
	if p.State != PaymentStateVerified {
		return customError.WrapInvalidTransition("payment", p.State, "reverse")
	}
	p.State = PaymentStateReversed
	p.Reason = reason
	return nil
}

// ValidMethod reports whether m is one of the supported payment methods.
func ValidMethod(m string) bool {
	switch m {
	case PaymentMethodCheck, PaymentMethodBankTransfer, PaymentMethodCreditCard, PaymentMethodCash, PaymentMethodOther:
		return true
	}
	return false
}

// DTOs for requests and responses

type SubmitPaymentRequest struct {
	AmountCents     int64     `json:"amount_cents" validate:"required"`
	Method          string    `json:"method" validate:"required"`
	ReferenceNumber string    `json:"reference_number"`
	Date            time.Time `json:"date"`
	Notes           string    `json:"notes"`
	IdempotencyKey  string    `json:"idempotency_key" validate:"required"`
}

type PaymentDecisionRequest struct {
	Reason string `json:"reason" validate:"required"`
}
