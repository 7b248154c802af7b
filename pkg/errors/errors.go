package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrInvalidAmount       = errors.New("invalid payment amount")
	ErrMissingMethod       = errors.New("payment method is required")
	ErrOrderingViolation   = errors.New("an older invoice with outstanding balance must be paid first")
	ErrInvalidTransition   = errors.New("transition not permitted from current state")
	ErrBalanceNotZero      = errors.New("invoice balance is not zero")
	ErrDuplicateSubmission = errors.New("duplicate payment submission")
	ErrLocked              = errors.New("invoice is locked by a concurrent operation")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeMissingMethod       = "MISSING_METHOD"
	ErrCodeOrderingViolation   = "ORDERING_VIOLATION"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeBalanceNotZero      = "BALANCE_NOT_ZERO"
	ErrCodeDuplicateSubmission = "DUPLICATE_SUBMISSION"
	ErrCodeLocked              = "LOCKED"
	ErrCodeDatabaseError       = "DATABASE_ERROR"
	ErrCodeCacheError          = "CACHE_ERROR"
)

// Wrap common errors with business context

func WrapInvoiceNotFound(invoiceID string) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("Invoice with ID %s not found", invoiceID),
		ErrInvoiceNotFound,
	)
}

func WrapPaymentNotFound(paymentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("Payment with ID %s not found", paymentID),
		ErrPaymentNotFound,
	)
}

func WrapInvalidAmount(amount, balance string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidAmount,
		fmt.Sprintf("Payment amount %s is not payable against balance %s", amount, balance),
		ErrInvalidAmount,
	)
}

// WrapMissingMethod distinguishes an absent method from an unsupported one.
func WrapMissingMethod(method string) *BusinessError {
	message := "Payment method is required"
	if method != "" {
		message = fmt.Sprintf("Payment method %q is not supported", method)
	}
	return NewBusinessError(ErrCodeMissingMethod, message, ErrMissingMethod)
}

// WrapOrderingViolation carries the id of the older invoice that blocks payment.
func WrapOrderingViolation(invoiceID, blockingInvoiceID string) *BusinessError {
	return NewBusinessError(
		ErrCodeOrderingViolation,
		fmt.Sprintf("Invoice %s cannot accept payment: older invoice %s has an outstanding balance", invoiceID, blockingInvoiceID),
		ErrOrderingViolation,
	)
}

// WrapInvalidTransition carries the current state and the attempted transition.
func WrapInvalidTransition(entity, currentState, attempted string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidTransition,
		fmt.Sprintf("%s in state %s does not permit %s", entity, currentState, attempted),
		ErrInvalidTransition,
	)
}

func WrapBalanceNotZero(invoiceID, balance string) *BusinessError {
	return NewBusinessError(
		ErrCodeBalanceNotZero,
		fmt.Sprintf("Invoice %s cannot be marked paid with outstanding balance %s", invoiceID, balance),
		ErrBalanceNotZero,
	)
}

func WrapDuplicateSubmission(idempotencyKey string) *BusinessError {
	return NewBusinessError(
		ErrCodeDuplicateSubmission,
		fmt.Sprintf("A payment with idempotency key %s was already submitted", idempotencyKey),
		ErrDuplicateSubmission,
	)
}

func WrapLocked(invoiceID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLocked,
		fmt.Sprintf("Invoice %s is locked by a concurrent operation, retry shortly", invoiceID),
		ErrLocked,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"Database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
