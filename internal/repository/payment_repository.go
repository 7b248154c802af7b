package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/courseflow/reconciliation-engine/internal/domain"
	"github.com/courseflow/reconciliation-engine/pkg/money"
)

type paymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

type paymentRow struct {
	ID              uuid.UUID `db:"id"`
	InvoiceID       uuid.UUID `db:"invoice_id"`
	AmountCents     int64     `db:"amount_cents"`
	Currency        string    `db:"currency"`
	Method          string    `db:"method"`
	ReferenceNumber string    `db:"reference_number"`
	SubmittedAt     time.Time `db:"submitted_at"`
	Notes           string    `db:"notes"`
	State           string    `db:"state"`
	Reason          string    `db:"reason"`
	IdempotencyKey  string    `db:"idempotency_key"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r *paymentRow) toDomain() *domain.Payment {
	return &domain.Payment{
		ID:              r.ID,
		InvoiceID:       r.InvoiceID,
		Amount:          money.New(r.AmountCents, r.Currency),
		Method:          r.Method,
		ReferenceNumber: r.ReferenceNumber,
		SubmittedAt:     r.SubmittedAt,
		Notes:           r.Notes,
		State:           r.State,
		Reason:          r.Reason,
		IdempotencyKey:  r.IdempotencyKey,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

const paymentColumns = `id, invoice_id, amount_cents, currency, method, reference_number,
	submitted_at, notes, state, reason, idempotency_key, created_at, updated_at`

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := ext(ctx, r.db).ExecContext(ctx, query,
		payment.ID,
		payment.InvoiceID,
		payment.Amount.Cents,
		payment.Amount.Currency,
		payment.Method,
		payment.ReferenceNumber,
		payment.SubmittedAt,
		payment.Notes,
		payment.State,
		payment.Reason,
		payment.IdempotencyKey,
		payment.CreatedAt,
		payment.UpdatedAt,
	)

	return err
}

func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	var row paymentRow
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &row, query, id); err != nil {
		return nil, err
	}

	return row.toDomain(), nil
}

func (r *paymentRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id = $1 ORDER BY submitted_at, id`

	var rows []*paymentRow
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &rows, query, invoiceID); err != nil {
		return nil, err
	}

	payments := make([]*domain.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.toDomain())
	}

	return payments, nil
}

func (r *paymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = $1`

	var row paymentRow
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &row, query, key); err != nil {
		return nil, err
	}

	return row.toDomain(), nil
}

func (r *paymentRepository) UpdateState(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET state = $2, reason = $3, updated_at = $4
		WHERE id = $1
	`

	_, err := ext(ctx, r.db).ExecContext(ctx, query,
		payment.ID,
		payment.State,
		payment.Reason,
		time.Now().UTC(),
	)

	return err
}
