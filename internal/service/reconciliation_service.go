package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/courseflow/reconciliation-engine/internal/config"
	"github.com/courseflow/reconciliation-engine/internal/domain"
	"github.com/courseflow/reconciliation-engine/internal/events"
	"github.com/courseflow/reconciliation-engine/internal/lock"
	"github.com/courseflow/reconciliation-engine/internal/logger"
	"github.com/courseflow/reconciliation-engine/internal/repository"
	customError "github.com/courseflow/reconciliation-engine/pkg/errors"
	"github.com/courseflow/reconciliation-engine/pkg/money"
)

const defaultActor = "system"

// ReconciliationService is the single writer to the invoice and payment
// stores. Every mutating command acquires the per-invoice lock, then runs
// validate+commit inside one unit of work, so no caller ever observes a
// partial write. Read-side components (balance preview, ordering policy)
// stay in the domain package and return plain values; this service is the
// only place typed failures are raised.
type ReconciliationService struct {
	invoiceRepo repository.InvoiceRepository
	paymentRepo repository.PaymentRepository
	auditRepo   repository.AuditRepository
	uow         repository.UnitOfWork
	locker      lock.Locker
	publisher   events.Publisher
	redis       *redis.Client
	cfg         *config.Config
	log         zerolog.Logger
}

func NewReconciliationService(
	invoiceRepo repository.InvoiceRepository,
	paymentRepo repository.PaymentRepository,
	auditRepo repository.AuditRepository,
	uow repository.UnitOfWork,
	locker lock.Locker,
	publisher events.Publisher,
	redisClient *redis.Client,
	cfg *config.Config,
) *ReconciliationService {
	return &ReconciliationService{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		auditRepo:   auditRepo,
		uow:         uow,
		locker:      locker,
		publisher:   publisher,
		redis:       redisClient,
		cfg:         cfg,
		log:         logger.WithComponent("reconciliation"),
	}
}

func invoiceLockKey(id uuid.UUID) string {
	return "invoice-lock:" + id.String()
}

func idempotencyCacheKey(key string) string {
	return "idem:" + key
}

// withInvoiceLock serializes a command on one invoice, translating a
// bounded acquisition timeout into a LOCKED failure.
func (s *ReconciliationService) withInvoiceLock(ctx context.Context, invoiceID uuid.UUID, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, invoiceLockKey(invoiceID), fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return customError.WrapLocked(invoiceID.String())
	}
	return err
}

func (s *ReconciliationService) getInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	inv, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapInvoiceNotFound(id.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return inv, nil
}

func (s *ReconciliationService) getPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapPaymentNotFound(id.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return p, nil
}

// CreateInvoice ingests a billing-ready course from the scheduling
// collaborator. Line items arrive precomputed; the invoice starts in the
// approval queue, invisible to the organization.
func (s *ReconciliationService) CreateInvoice(ctx context.Context, request *domain.CreateInvoiceRequest) (*domain.Invoice, error) {
	currency := request.Currency
	if currency == "" {
		currency = s.cfg.Business.Currency
	}

	now := time.Now().UTC()
	invoice := &domain.Invoice{
		ID:              uuid.New(),
		OrganizationID:  request.OrganizationID,
		CourseReference: request.CourseReference,
		IssuedAt:        request.IssuedAt,
		DueAt:           request.DueAt,
		BaseCost:        money.New(request.BaseCostCents, currency),
		TaxAmount:       money.New(request.TaxAmountCents, currency),
		AmountPaid:      money.Zero(currency),
		ApprovalStatus:  domain.ApprovalStatusPending,
		PaymentStatus:   domain.PaymentStatusUnbilled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.uow.Do(ctx, func(ctx context.Context) error {
		if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
			return customError.WrapDatabaseError(err)
		}
		entry := domain.NewAuditEntry(domain.AuditEntityInvoice, invoice.ID, defaultActor, "", domain.ApprovalStatusPending, "billing-ready")
		if err := s.auditRepo.Create(ctx, entry); err != nil {
			return customError.WrapDatabaseError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("invoice_id", invoice.ID.String()).Str("organization_id", invoice.OrganizationID.String()).Msg("invoice created")
	return invoice, nil
}

// GetInvoice returns one invoice.
func (s *ReconciliationService) GetInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	return s.getInvoice(ctx, id)
}

// ListInvoices returns an organization's invoices ordered oldest first.
func (s *ReconciliationService) ListInvoices(ctx context.Context, organizationID uuid.UUID) ([]*domain.Invoice, error) {
	invoices, err := s.invoiceRepo.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return invoices, nil
}

// GetOldestUnpaidInvoice returns the invoice the organization must settle
// next, or nil when nothing is owed. Advisory; SubmitPayment re-checks.
func (s *ReconciliationService) GetOldestUnpaidInvoice(ctx context.Context, organizationID uuid.UUID) (*domain.Invoice, error) {
	invoices, err := s.invoiceRepo.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return domain.OldestUnpaid(invoices), nil
}

// ListPayments returns the full payment history for an invoice.
func (s *ReconciliationService) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]*domain.Payment, error) {
	if _, err := s.getInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	payments, err := s.paymentRepo.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return payments, nil
}

// ListAuditTrail returns the transition history for an invoice or payment.
// The log is append-only; an invoice's amount_paid can be reconstructed
// from it independently of the stored projection.
func (s *ReconciliationService) ListAuditTrail(ctx context.Context, entityType string, entityID uuid.UUID) ([]*domain.AuditEntry, error) {
	entries, err := s.auditRepo.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return entries, nil
}

// PreviewPayment derives the effect of a hypothetical amount. Pure read.
func (s *ReconciliationService) PreviewPayment(ctx context.Context, invoiceID uuid.UUID, amountCents int64) (*domain.PaymentPreview, error) {
	invoice, err := s.getInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	preview := domain.PreviewPayment(invoice, money.New(amountCents, invoice.BaseCost.Currency))
	return &preview, nil
}

// SubmitPayment records an organization's payment against an invoice. The
// ordering policy and balance check are mandatory here regardless of what
// any read-side preview said. A repeated call with the same idempotency
// key returns the original payment instead of creating a duplicate.
func (s *ReconciliationService) SubmitPayment(ctx context.Context, invoiceID uuid.UUID, request *domain.SubmitPaymentRequest) (*domain.Payment, error) {
	var payment *domain.Payment

	err := s.withInvoiceLock(ctx, invoiceID, func(ctx context.Context) error {
		// Fast-path replay within the idempotency window.
		if original, err := s.replayedPayment(ctx, request.IdempotencyKey); err != nil {
			return err
		} else if original != nil {
			payment = original
			return nil
		}

		return s.uow.Do(ctx, func(ctx context.Context) error {
			invoice, err := s.getInvoice(ctx, invoiceID)
			if err != nil {
				return err
			}

			if !invoice.IsPosted() || invoice.PaymentStatus == domain.PaymentStatusPaid {
				return customError.WrapInvalidTransition("invoice", invoice.PaymentStatus, "submit_payment")
			}

			orgInvoices, err := s.invoiceRepo.ListByOrganization(ctx, invoice.OrganizationID)
			if err != nil {
				return customError.WrapDatabaseError(err)
			}
			if ok, blocking := domain.CanAcceptPayment(invoice, orgInvoices); !ok {
				return customError.WrapOrderingViolation(invoice.ID.String(), blocking.String())
			}

			amount := money.New(request.AmountCents, invoice.BaseCost.Currency)
			preview := domain.PreviewPayment(invoice, amount)
			if !preview.IsValidAmount {
				return customError.WrapInvalidAmount(amount.String(), preview.CurrentBalance.String())
			}

			if !domain.ValidMethod(request.Method) {
				return customError.WrapMissingMethod(request.Method)
			}

			submittedAt := request.Date
			if submittedAt.IsZero() {
				submittedAt = time.Now().UTC()
			}

			now := time.Now().UTC()
			payment = &domain.Payment{
				ID:              uuid.New(),
				InvoiceID:       invoice.ID,
				Amount:          amount,
				Method:          request.Method,
				ReferenceNumber: request.ReferenceNumber,
				SubmittedAt:     submittedAt,
				Notes:           request.Notes,
				State:           domain.PaymentStatePendingVerification,
				IdempotencyKey:  request.IdempotencyKey,
				CreatedAt:       now,
				UpdatedAt:       now,
			}

			if err := s.paymentRepo.Create(ctx, payment); err != nil {
				// The unique key column backstops a racing duplicate that
				// slipped past the cache window.
				if isUniqueViolation(err) {
					return customError.WrapDuplicateSubmission(request.IdempotencyKey)
				}
				return customError.WrapDatabaseError(err)
			}

			entry := domain.NewAuditEntry(domain.AuditEntityPayment, payment.ID, defaultActor, "", domain.PaymentStatePendingVerification, "")
			if err := s.auditRepo.Create(ctx, entry); err != nil {
				return customError.WrapDatabaseError(err)
			}

			// Unverified payments never touch amount_paid; only the
			// derived payment_status label moves.
			return s.settleInvoice(ctx, invoice, defaultActor)
		})
	})
	if err != nil {
		return nil, err
	}

	s.cacheIdempotencyKey(ctx, request.IdempotencyKey, payment.ID)
	return payment, nil
}

// VerifyPayment confirms a submitted payment and folds it into the ledger.
func (s *ReconciliationService) VerifyPayment(ctx context.Context, paymentID uuid.UUID, actor string) (*domain.Payment, error) {
	return s.decidePayment(ctx, paymentID, actor, "", func(p *domain.Payment) error {
		return p.Verify()
	})
}

// RejectPayment declines a submitted payment; the ledger is untouched.
func (s *ReconciliationService) RejectPayment(ctx context.Context, paymentID uuid.UUID, actor, reason string) (*domain.Payment, error) {
	return s.decidePayment(ctx, paymentID, actor, reason, func(p *domain.Payment) error {
		return p.Reject(reason)
	})
}

// ReversePayment undoes a verified payment's ledger effect, which may move
// the invoice back from paid to pending.
func (s *ReconciliationService) ReversePayment(ctx context.Context, paymentID uuid.UUID, actor, reason string) (*domain.Payment, error) {
	return s.decidePayment(ctx, paymentID, actor, reason, func(p *domain.Payment) error {
		return p.Reverse(reason)
	})
}

// decidePayment runs one payment transition plus the invoice recomputation
// under the invoice lock, linearized with every other command on the same
// invoice.
func (s *ReconciliationService) decidePayment(ctx context.Context, paymentID uuid.UUID, actor, reason string, transition func(*domain.Payment) error) (*domain.Payment, error) {
	if actor == "" {
		actor = defaultActor
	}

	// Resolve the owning invoice before locking; the payment's invoice
	// link is immutable.
	payment, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	invoiceID := payment.InvoiceID

	var published []domain.Event
	err = s.withInvoiceLock(ctx, invoiceID, func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context) error {
			// Re-read under the lock; a concurrent command may have won.
			payment, err = s.getPayment(ctx, paymentID)
			if err != nil {
				return err
			}

			invoice, err := s.getInvoice(ctx, invoiceID)
			if err != nil {
				return err
			}

			fromState := payment.State
			if err := transition(payment); err != nil {
				return err
			}

			if err := s.paymentRepo.UpdateState(ctx, payment); err != nil {
				return customError.WrapDatabaseError(err)
			}

			entry := domain.NewAuditEntry(domain.AuditEntityPayment, payment.ID, actor, fromState, payment.State, reason)
			if err := s.auditRepo.Create(ctx, entry); err != nil {
				return customError.WrapDatabaseError(err)
			}

			wasPaid := invoice.PaymentStatus == domain.PaymentStatusPaid
			if err := s.settleInvoice(ctx, invoice, actor); err != nil {
				return err
			}

			now := time.Now().UTC()
			switch payment.State {
			case domain.PaymentStateVerified:
				published = append(published, domain.Event{
					Type: domain.EventPaymentVerified, InvoiceID: invoice.ID, PaymentID: payment.ID,
					OrganizationID: invoice.OrganizationID, OccurredAt: now,
				})
				if invoice.PaymentStatus == domain.PaymentStatusPaid && !wasPaid {
					published = append(published, domain.Event{
						Type: domain.EventInvoicePaid, InvoiceID: invoice.ID,
						OrganizationID: invoice.OrganizationID, OccurredAt: now,
					})
				}
			case domain.PaymentStateReversed:
				published = append(published, domain.Event{
					Type: domain.EventPaymentReversed, InvoiceID: invoice.ID, PaymentID: payment.ID,
					OrganizationID: invoice.OrganizationID, OccurredAt: now,
				})
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, published...)
	return payment, nil
}

// settleInvoice recomputes amount_paid from the full payment history and
// persists the result. Called after every payment state change; the
// projection is never incremented in place.
func (s *ReconciliationService) settleInvoice(ctx context.Context, invoice *domain.Invoice, actor string) error {
	payments, err := s.paymentRepo.ListByInvoice(ctx, invoice.ID)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	fromStatus := invoice.PaymentStatus
	invoice.SettleAgainst(payments)

	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return customError.WrapDatabaseError(err)
	}

	if invoice.PaymentStatus != fromStatus {
		entry := domain.NewAuditEntry(domain.AuditEntityInvoice, invoice.ID, actor, fromStatus, invoice.PaymentStatus, "")
		if err := s.auditRepo.Create(ctx, entry); err != nil {
			return customError.WrapDatabaseError(err)
		}
	}

	return nil
}

// ApproveInvoice moves an invoice out of the approval queue.
func (s *ReconciliationService) ApproveInvoice(ctx context.Context, invoiceID uuid.UUID, actor string) (*domain.Invoice, error) {
	return s.transitionInvoice(ctx, invoiceID, actor, "", nil, func(inv *domain.Invoice) error {
		return inv.Approve()
	})
}

// RejectInvoice permanently excludes an invoice from receivables.
func (s *ReconciliationService) RejectInvoice(ctx context.Context, invoiceID uuid.UUID, actor, reason string) (*domain.Invoice, error) {
	return s.transitionInvoice(ctx, invoiceID, actor, reason, nil, func(inv *domain.Invoice) error {
		return inv.Reject(reason)
	})
}

// PostInvoiceToOrganization makes an approved invoice visible and payable.
func (s *ReconciliationService) PostInvoiceToOrganization(ctx context.Context, invoiceID uuid.UUID, actor string) (*domain.Invoice, error) {
	return s.transitionInvoice(ctx, invoiceID, actor, "", eventType(domain.EventInvoicePosted), func(inv *domain.Invoice) error {
		return inv.PostToOrganization()
	})
}

// MarkInvoiceAsPaid is manual closure for out-of-band settlements.
func (s *ReconciliationService) MarkInvoiceAsPaid(ctx context.Context, invoiceID uuid.UUID, actor string) (*domain.Invoice, error) {
	return s.transitionInvoice(ctx, invoiceID, actor, "", eventType(domain.EventInvoicePaid), func(inv *domain.Invoice) error {
		return inv.MarkAsPaid()
	})
}

func eventType(t string) *string { return &t }

func (s *ReconciliationService) transitionInvoice(ctx context.Context, invoiceID uuid.UUID, actor, reason string, emit *string, transition func(*domain.Invoice) error) (*domain.Invoice, error) {
	if actor == "" {
		actor = defaultActor
	}

	var invoice *domain.Invoice
	err := s.withInvoiceLock(ctx, invoiceID, func(ctx context.Context) error {
		return s.uow.Do(ctx, func(ctx context.Context) error {
			var err error
			invoice, err = s.getInvoice(ctx, invoiceID)
			if err != nil {
				return err
			}

			fromApproval, fromPayment := invoice.ApprovalStatus, invoice.PaymentStatus
			if err := transition(invoice); err != nil {
				return err
			}

			if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
				return customError.WrapDatabaseError(err)
			}

			from := fromApproval
			to := invoice.ApprovalStatus
			if fromPayment != invoice.PaymentStatus {
				from, to = fromPayment, invoice.PaymentStatus
			}
			entry := domain.NewAuditEntry(domain.AuditEntityInvoice, invoice.ID, actor, from, to, reason)
			if err := s.auditRepo.Create(ctx, entry); err != nil {
				return customError.WrapDatabaseError(err)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if emit != nil {
		s.publish(ctx, domain.Event{
			Type:           *emit,
			InvoiceID:      invoice.ID,
			OrganizationID: invoice.OrganizationID,
			OccurredAt:     time.Now().UTC(),
		})
	}

	return invoice, nil
}

// SweepOverdue publishes an InvoiceOverdue event for every posted, unpaid
// invoice past due. Overdue is derived, so nothing is written.
func (s *ReconciliationService) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	invoices, err := s.invoiceRepo.ListOverdue(ctx, now)
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}

	for _, inv := range invoices {
		s.publish(ctx, domain.Event{
			Type:           domain.EventInvoiceOverdue,
			InvoiceID:      inv.ID,
			OrganizationID: inv.OrganizationID,
			OccurredAt:     now,
		})
	}

	return len(invoices), nil
}

// replayedPayment resolves an idempotency key to its original payment, via
// the redis window first and the durable unique column second.
func (s *ReconciliationService) replayedPayment(ctx context.Context, key string) (*domain.Payment, error) {
	if key == "" {
		return nil, nil
	}

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, idempotencyCacheKey(key)).Result()
		if err == nil {
			id, parseErr := uuid.Parse(cached)
			if parseErr == nil {
				return s.getPayment(ctx, id)
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("idempotency cache read failed, falling back to store")
		}
	}

	original, err := s.paymentRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return original, nil
}

func (s *ReconciliationService) cacheIdempotencyKey(ctx context.Context, key string, paymentID uuid.UUID) {
	if s.redis == nil || key == "" {
		return
	}
	if err := s.redis.Set(ctx, idempotencyCacheKey(key), paymentID.String(), s.cfg.Business.IdempotencyTTL).Err(); err != nil {
		s.log.Warn().Err(err).Msg("idempotency cache write failed")
	}
}

// publish delivers events after commit. Delivery failure is logged, never
// surfaced: the command already succeeded.
func (s *ReconciliationService) publish(ctx context.Context, evs ...domain.Event) {
	for _, ev := range evs {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.log.Error().Err(err).Str("type", ev.Type).Msg("event delivery failed")
		}
	}
}

// isUniqueViolation matches the postgres unique_violation class.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
