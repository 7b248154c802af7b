package service

import (
	"context"
	"database/sql"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/courseflow/reconciliation-engine/internal/config"
	"github.com/courseflow/reconciliation-engine/internal/domain"
	"github.com/courseflow/reconciliation-engine/internal/lock"
	"github.com/courseflow/reconciliation-engine/pkg/errors"
	"github.com/courseflow/reconciliation-engine/pkg/money"
	"github.com/courseflow/reconciliation-engine/tests/mocks"
)

type serviceFixture struct {
	invoiceRepo *mocks.MockInvoiceRepository
	paymentRepo *mocks.MockPaymentRepository
	auditRepo   *mocks.MockAuditRepository
	publisher   *mocks.RecordingPublisher
	service     *ReconciliationService
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		invoiceRepo: &mocks.MockInvoiceRepository{},
		paymentRepo: &mocks.MockPaymentRepository{},
		auditRepo:   &mocks.MockAuditRepository{},
		publisher:   &mocks.RecordingPublisher{},
	}
	f.service = &ReconciliationService{
		invoiceRepo: f.invoiceRepo,
		paymentRepo: f.paymentRepo,
		auditRepo:   f.auditRepo,
		uow:         mocks.PassthroughUnitOfWork{},
		locker:      lock.NewMemoryLocker(),
		publisher:   f.publisher,
		cfg: &config.Config{
			Business: config.BusinessConfig{Currency: "USD", IdempotencyTTL: time.Hour},
		},
		log: zerolog.Nop(),
	}
	return f
}

// postedInvoice is a $40.68 invoice visible to the organization.
func postedInvoice() *domain.Invoice {
	return &domain.Invoice{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		IssuedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DueAt:          time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		BaseCost:       money.New(3800, "USD"),
		TaxAmount:      money.New(268, "USD"),
		AmountPaid:     money.Zero("USD"),
		ApprovalStatus: domain.ApprovalStatusApproved,
		PaymentStatus:  domain.PaymentStatusPending,
	}
}

// deniedLocker simulates contention: acquisition always times out.
type deniedLocker struct{}

func (deniedLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return lock.ErrNotAcquired
}

func submitRequest(cents int64) *domain.SubmitPaymentRequest {
	return &domain.SubmitPaymentRequest{
		AmountCents:    cents,
		Method:         domain.PaymentMethodBankTransfer,
		IdempotencyKey: uuid.NewString(),
	}
}

func TestSubmitPayment(t *testing.T) {
	tests := []struct {
		name          string
		request       *domain.SubmitPaymentRequest
		setupMocks    func(*serviceFixture, *domain.Invoice)
		expectedError error
	}{
		{
			name:    "Success - partial payment moves invoice to payment_submitted",
			request: submitRequest(2000),
			setupMocks: func(f *serviceFixture, inv *domain.Invoice) {
				f.paymentRepo.On("GetByIdempotencyKey", mock.Anything, mock.Anything).Return(nil, sql.ErrNoRows)
				f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
				f.invoiceRepo.On("ListByOrganization", mock.Anything, inv.OrganizationID).Return([]*domain.Invoice{inv}, nil)
				f.paymentRepo.On("Create", mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
					return p.State == domain.PaymentStatePendingVerification && p.Amount.Cents == 2000
				})).Return(nil)
				f.paymentRepo.On("ListByInvoice", mock.Anything, inv.ID).Return([]*domain.Payment{
					{InvoiceID: inv.ID, Amount: money.New(2000, "USD"), State: domain.PaymentStatePendingVerification},
				}, nil)
				f.invoiceRepo.On("Update", mock.Anything, inv).Return(nil)
				f.auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
		},
		{
			name:    "Failure - overpayment rejected",
			request: submitRequest(5000),
			setupMocks: func(f *serviceFixture, inv *domain.Invoice) {
				f.paymentRepo.On("GetByIdempotencyKey", mock.Anything, mock.Anything).Return(nil, sql.ErrNoRows)
				f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
				f.invoiceRepo.On("ListByOrganization", mock.Anything, inv.OrganizationID).Return([]*domain.Invoice{inv}, nil)
			},
			expectedError: errors.ErrInvalidAmount,
		},
		{
			name:    "Failure - zero amount rejected",
			request: submitRequest(0),
			setupMocks: func(f *serviceFixture, inv *domain.Invoice) {
				f.paymentRepo.On("GetByIdempotencyKey", mock.Anything, mock.Anything).Return(nil, sql.ErrNoRows)
				f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
				f.invoiceRepo.On("ListByOrganization", mock.Anything, inv.OrganizationID).Return([]*domain.Invoice{inv}, nil)
			},
			expectedError: errors.ErrInvalidAmount,
		},
		{
			name: "Failure - missing payment method",
			request: &domain.SubmitPaymentRequest{
				AmountCents:    2000,
				IdempotencyKey: uuid.NewString(),
			},
			setupMocks: func(f *serviceFixture, inv *domain.Invoice) {
				f.paymentRepo.On("GetByIdempotencyKey", mock.Anything, mock.Anything).Return(nil, sql.ErrNoRows)
				f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
				f.invoiceRepo.On("ListByOrganization", mock.Anything, inv.OrganizationID).Return([]*domain.Invoice{inv}, nil)
			},
			expectedError: errors.ErrMissingMethod,
		},
		{
			name:    "Failure - invoice not found",
			request: submitRequest(2000),
			setupMocks: func(f *serviceFixture, inv *domain.Invoice) {
				f.paymentRepo.On("GetByIdempotencyKey", mock.Anything, mock.Anything).Return(nil, sql.ErrNoRows)
				f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(nil, sql.ErrNoRows)
			},
			expectedError: errors.ErrInvoiceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			inv := postedInvoice()
			tt.setupMocks(f, inv)

			payment, err := f.service.SubmitPayment(context.Background(), inv.ID, tt.request)

			if tt.expectedError != nil {
				require.Error(t, err)
				assert.True(t, stderrors.Is(err, tt.expectedError), "got %v", err)
				assert.Nil(t, payment)
				f.paymentRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, payment)
			assert.Equal(t, domain.PaymentStatePendingVerification, payment.State)
			assert.Equal(t, int64(2000), payment.Amount.Cents)
			// Unverified submissions never touch the ledger.
			assert.True(t, inv.AmountPaid.IsZero())
			assert.Equal(t, domain.PaymentStatusSubmitted, inv.PaymentStatus)
			f.invoiceRepo.AssertExpectations(t)
			f.paymentRepo.AssertExpectations(t)
		})
	}
}

func TestSubmitPayment_LockContention(t *testing.T) {
	f := newFixture()
	f.service.locker = deniedLocker{}

	inv := postedInvoice()

	payment, err := f.service.SubmitPayment(context.Background(), inv.ID, submitRequest(2000))

	require.Error(t, err)
	assert.Nil(t, payment)
	assert.True(t, stderrors.Is(err, errors.ErrLocked))

	var bizErr *errors.BusinessError
	require.True(t, stderrors.As(err, &bizErr))
	assert.Equal(t, errors.ErrCodeLocked, bizErr.Code)
	f.paymentRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestVerifyPayment_LockContention(t *testing.T) {
	f := newFixture()
	f.service.locker = deniedLocker{}

	inv := postedInvoice()
	payment := &domain.Payment{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Amount:    money.New(2000, "USD"),
		State:     domain.PaymentStatePendingVerification,
	}
	f.paymentRepo.On("GetByID", mock.Anything, payment.ID).Return(payment, nil)

	_, err := f.service.VerifyPayment(context.Background(), payment.ID, "accountant-1")

	assert.True(t, stderrors.Is(err, errors.ErrLocked))
	f.paymentRepo.AssertNotCalled(t, "UpdateState", mock.Anything, mock.Anything)
}

func TestSubmitPayment_OrderingViolation(t *testing.T) {
	f := newFixture()

	orgID := uuid.New()
	older := postedInvoice()
	older.OrganizationID = orgID
	older.IssuedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	newer := postedInvoice()
	newer.OrganizationID = orgID
	newer.IssuedAt = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	newer.BaseCost = money.New(2000, "USD")
	newer.TaxAmount = money.Zero("USD")

	f.paymentRepo.On("GetByIdempotencyKey", mock.Anything, mock.Anything).Return(nil, sql.ErrNoRows)
	f.invoiceRepo.On("GetByID", mock.Anything, newer.ID).Return(newer, nil)
	f.invoiceRepo.On("ListByOrganization", mock.Anything, orgID).Return([]*domain.Invoice{older, newer}, nil)

	payment, err := f.service.SubmitPayment(context.Background(), newer.ID, submitRequest(2000))

	require.Error(t, err)
	assert.Nil(t, payment)
	assert.True(t, stderrors.Is(err, errors.ErrOrderingViolation))

	var bizErr *errors.BusinessError
	require.True(t, stderrors.As(err, &bizErr))
	assert.Equal(t, errors.ErrCodeOrderingViolation, bizErr.Code)
	assert.Contains(t, bizErr.Message, older.ID.String())
}

func TestSubmitPayment_NotPayableBeforePosting(t *testing.T) {
	f := newFixture()

	inv := postedInvoice()
	inv.PaymentStatus = domain.PaymentStatusUnbilled

	f.paymentRepo.On("GetByIdempotencyKey", mock.Anything, mock.Anything).Return(nil, sql.ErrNoRows)
	f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)

	_, err := f.service.SubmitPayment(context.Background(), inv.ID, submitRequest(2000))

	assert.True(t, stderrors.Is(err, errors.ErrInvalidTransition))
}

func TestSubmitPayment_IdempotentReplay(t *testing.T) {
	f := newFixture()

	inv := postedInvoice()
	request := submitRequest(2000)
	original := &domain.Payment{
		ID:             uuid.New(),
		InvoiceID:      inv.ID,
		Amount:         money.New(2000, "USD"),
		State:          domain.PaymentStatePendingVerification,
		IdempotencyKey: request.IdempotencyKey,
	}

	f.paymentRepo.On("GetByIdempotencyKey", mock.Anything, request.IdempotencyKey).Return(original, nil)

	replayed, err := f.service.SubmitPayment(context.Background(), inv.ID, request)

	require.NoError(t, err)
	assert.Equal(t, original.ID, replayed.ID)
	// Exactly one payment record: the replay creates nothing.
	f.paymentRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.invoiceRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestSubmitPayment_UnsupportedMethod(t *testing.T) {
	f := newFixture()

	inv := postedInvoice()
	request := submitRequest(2000)
	request.Method = "paypal"

	f.paymentRepo.On("GetByIdempotencyKey", mock.Anything, mock.Anything).Return(nil, sql.ErrNoRows)
	f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
	f.invoiceRepo.On("ListByOrganization", mock.Anything, inv.OrganizationID).Return([]*domain.Invoice{inv}, nil)

	_, err := f.service.SubmitPayment(context.Background(), inv.ID, request)

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrMissingMethod))

	var bizErr *errors.BusinessError
	require.True(t, stderrors.As(err, &bizErr))
	assert.Contains(t, bizErr.Message, "paypal")
	assert.Contains(t, bizErr.Message, "not supported")
}

func TestSubmitPayment_RacingDuplicate(t *testing.T) {
	f := newFixture()

	inv := postedInvoice()
	request := submitRequest(2000)

	// The idempotency window misses, but a concurrent submission with the
	// same key already won the unique column.
	f.paymentRepo.On("GetByIdempotencyKey", mock.Anything, request.IdempotencyKey).Return(nil, sql.ErrNoRows)
	f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
	f.invoiceRepo.On("ListByOrganization", mock.Anything, inv.OrganizationID).Return([]*domain.Invoice{inv}, nil)
	f.paymentRepo.On("Create", mock.Anything, mock.Anything).Return(&pq.Error{Code: "23505"})

	payment, err := f.service.SubmitPayment(context.Background(), inv.ID, request)

	require.Error(t, err)
	assert.Nil(t, payment)
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateSubmission))

	var bizErr *errors.BusinessError
	require.True(t, stderrors.As(err, &bizErr))
	assert.Equal(t, errors.ErrCodeDuplicateSubmission, bizErr.Code)

	// No second record and no ledger recompute after the failed insert.
	f.paymentRepo.AssertNumberOfCalls(t, "Create", 1)
	f.invoiceRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestVerifyPayment_PartialAmount(t *testing.T) {
	f := newFixture()

	inv := postedInvoice()
	payment := &domain.Payment{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Amount:    money.New(2000, "USD"),
		State:     domain.PaymentStatePendingVerification,
	}

	f.paymentRepo.On("GetByID", mock.Anything, payment.ID).Return(payment, nil)
	f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
	f.paymentRepo.On("UpdateState", mock.Anything, payment).Return(nil)
	f.paymentRepo.On("ListByInvoice", mock.Anything, inv.ID).Return([]*domain.Payment{payment}, nil)
	f.invoiceRepo.On("Update", mock.Anything, inv).Return(nil)
	f.auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	verified, err := f.service.VerifyPayment(context.Background(), payment.ID, "accountant-1")

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStateVerified, verified.State)
	assert.Equal(t, int64(2000), inv.AmountPaid.Cents)
	assert.Equal(t, int64(2068), inv.BalanceDue().Cents)
	// Partial payment: the invoice is not paid yet.
	assert.Equal(t, domain.PaymentStatusPending, inv.PaymentStatus)

	require.Len(t, f.publisher.Events, 1)
	assert.Equal(t, domain.EventPaymentVerified, f.publisher.Events[0].Type)
}

func TestVerifyPayment_FullAmountPaysInvoice(t *testing.T) {
	f := newFixture()

	inv := postedInvoice()
	payment := &domain.Payment{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Amount:    money.New(4068, "USD"),
		State:     domain.PaymentStatePendingVerification,
	}

	f.paymentRepo.On("GetByID", mock.Anything, payment.ID).Return(payment, nil)
	f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
	f.paymentRepo.On("UpdateState", mock.Anything, payment).Return(nil)
	f.paymentRepo.On("ListByInvoice", mock.Anything, inv.ID).Return([]*domain.Payment{payment}, nil)
	f.invoiceRepo.On("Update", mock.Anything, inv).Return(nil)
	f.auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.VerifyPayment(context.Background(), payment.ID, "accountant-1")

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, inv.PaymentStatus)
	assert.True(t, inv.BalanceDue().IsZero())

	require.Len(t, f.publisher.Events, 2)
	assert.Equal(t, domain.EventPaymentVerified, f.publisher.Events[0].Type)
	assert.Equal(t, domain.EventInvoicePaid, f.publisher.Events[1].Type)
}

func TestVerifyPayment_InvalidState(t *testing.T) {
	f := newFixture()

	inv := postedInvoice()
	payment := &domain.Payment{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Amount:    money.New(2000, "USD"),
		State:     domain.PaymentStateRejected,
	}

	f.paymentRepo.On("GetByID", mock.Anything, payment.ID).Return(payment, nil)
	f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)

	_, err := f.service.VerifyPayment(context.Background(), payment.ID, "accountant-1")

	assert.True(t, stderrors.Is(err, errors.ErrInvalidTransition))
	f.paymentRepo.AssertNotCalled(t, "UpdateState", mock.Anything, mock.Anything)
}

func TestReversePayment_RestoresBalanceExactly(t *testing.T) {
	f := newFixture()

	inv := postedInvoice()
	inv.AmountPaid = money.New(4068, "USD")
	inv.PaymentStatus = domain.PaymentStatusPaid

	payment := &domain.Payment{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Amount:    money.New(4068, "USD"),
		State:     domain.PaymentStateVerified,
	}

	f.paymentRepo.On("GetByID", mock.Anything, payment.ID).Return(payment, nil)
	f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
	f.paymentRepo.On("UpdateState", mock.Anything, payment).Return(nil)
	f.paymentRepo.On("ListByInvoice", mock.Anything, inv.ID).Return([]*domain.Payment{payment}, nil)
	f.invoiceRepo.On("Update", mock.Anything, inv).Return(nil)
	f.auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	reversed, err := f.service.ReversePayment(context.Background(), payment.ID, "accountant-1", "bank transfer bounced")

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStateReversed, reversed.State)
	// Integer cents round trip: balance restored to the full total.
	assert.True(t, inv.AmountPaid.IsZero())
	assert.Equal(t, inv.Total().Cents, inv.BalanceDue().Cents)
	assert.Equal(t, domain.PaymentStatusPending, inv.PaymentStatus)

	require.Len(t, f.publisher.Events, 1)
	assert.Equal(t, domain.EventPaymentReversed, f.publisher.Events[0].Type)
}

func TestRejectPayment_LeavesLedgerUntouched(t *testing.T) {
	f := newFixture()

	inv := postedInvoice()
	payment := &domain.Payment{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Amount:    money.New(2000, "USD"),
		State:     domain.PaymentStatePendingVerification,
	}

	f.paymentRepo.On("GetByID", mock.Anything, payment.ID).Return(payment, nil)
	f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
	f.paymentRepo.On("UpdateState", mock.Anything, payment).Return(nil)
	f.paymentRepo.On("ListByInvoice", mock.Anything, inv.ID).Return([]*domain.Payment{payment}, nil)
	f.invoiceRepo.On("Update", mock.Anything, inv).Return(nil)
	f.auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	rejected, err := f.service.RejectPayment(context.Background(), payment.ID, "accountant-1", "no matching deposit")

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStateRejected, rejected.State)
	assert.True(t, inv.AmountPaid.IsZero())
	assert.Empty(t, f.publisher.Events)
}

func TestInvoiceCommands(t *testing.T) {
	t.Run("approve then post", func(t *testing.T) {
		f := newFixture()

		inv := postedInvoice()
		inv.ApprovalStatus = domain.ApprovalStatusPending
		inv.PaymentStatus = domain.PaymentStatusUnbilled

		f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
		f.invoiceRepo.On("Update", mock.Anything, inv).Return(nil)
		f.auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

		approved, err := f.service.ApproveInvoice(context.Background(), inv.ID, "controller-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ApprovalStatusApproved, approved.ApprovalStatus)

		posted, err := f.service.PostInvoiceToOrganization(context.Background(), inv.ID, "controller-1")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusPending, posted.PaymentStatus)

		require.Len(t, f.publisher.Events, 1)
		assert.Equal(t, domain.EventInvoicePosted, f.publisher.Events[0].Type)
	})

	t.Run("mark as paid fails with outstanding balance", func(t *testing.T) {
		f := newFixture()

		inv := postedInvoice()
		f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)

		_, err := f.service.MarkInvoiceAsPaid(context.Background(), inv.ID, "controller-1")

		assert.True(t, stderrors.Is(err, errors.ErrBalanceNotZero))
		f.invoiceRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("reject invoice records the reason", func(t *testing.T) {
		f := newFixture()

		inv := postedInvoice()
		inv.ApprovalStatus = domain.ApprovalStatusPending
		inv.PaymentStatus = domain.PaymentStatusUnbilled

		f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
		f.invoiceRepo.On("Update", mock.Anything, inv).Return(nil)
		f.auditRepo.On("Create", mock.Anything, mock.MatchedBy(func(e *domain.AuditEntry) bool {
			return e.ToState == domain.ApprovalStatusRejected && e.Reason == "duplicate billing"
		})).Return(nil)

		rejected, err := f.service.RejectInvoice(context.Background(), inv.ID, "controller-1", "duplicate billing")

		require.NoError(t, err)
		assert.Equal(t, domain.ApprovalStatusRejected, rejected.ApprovalStatus)
		f.auditRepo.AssertExpectations(t)
	})
}

func TestGetOldestUnpaidInvoice(t *testing.T) {
	f := newFixture()

	orgID := uuid.New()
	older := postedInvoice()
	older.OrganizationID = orgID
	newer := postedInvoice()
	newer.OrganizationID = orgID
	newer.IssuedAt = older.IssuedAt.AddDate(0, 0, 4)

	f.invoiceRepo.On("ListByOrganization", mock.Anything, orgID).Return([]*domain.Invoice{newer, older}, nil)

	oldest, err := f.service.GetOldestUnpaidInvoice(context.Background(), orgID)

	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, older.ID, oldest.ID)
}

func TestPreviewPayment_FullPayment(t *testing.T) {
	f := newFixture()

	inv := postedInvoice()
	f.invoiceRepo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)

	preview, err := f.service.PreviewPayment(context.Background(), inv.ID, 4068)

	require.NoError(t, err)
	assert.True(t, preview.IsFullPayment)
	assert.True(t, preview.ResultingBalance.IsZero())
	assert.False(t, preview.IsOverpayment)
}

func TestSweepOverdue(t *testing.T) {
	f := newFixture()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	overdue := postedInvoice()

	f.invoiceRepo.On("ListOverdue", mock.Anything, now).Return([]*domain.Invoice{overdue}, nil)

	count, err := f.service.SweepOverdue(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, f.publisher.Events, 1)
	assert.Equal(t, domain.EventInvoiceOverdue, f.publisher.Events[0].Type)
	assert.Equal(t, overdue.ID, f.publisher.Events[0].InvoiceID)
}
