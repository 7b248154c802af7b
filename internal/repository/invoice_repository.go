package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/courseflow/reconciliation-engine/internal/domain"
	"github.com/courseflow/reconciliation-engine/pkg/money"
)

type invoiceRepository struct {
	db *sqlx.DB
}

func NewInvoiceRepository(db *sqlx.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// invoiceRow is the persistence shape: amounts are BIGINT minor units.
type invoiceRow struct {
	ID              uuid.UUID `db:"id"`
	OrganizationID  uuid.UUID `db:"organization_id"`
	CourseReference string    `db:"course_reference"`
	IssuedAt        time.Time `db:"issued_at"`
	DueAt           time.Time `db:"due_at"`
	BaseCostCents   int64     `db:"base_cost_cents"`
	TaxAmountCents  int64     `db:"tax_amount_cents"`
	AmountPaidCents int64     `db:"amount_paid_cents"`
	Currency        string    `db:"currency"`
	ApprovalStatus  string    `db:"approval_status"`
	PaymentStatus   string    `db:"payment_status"`
	RejectionReason string    `db:"rejection_reason"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r *invoiceRow) toDomain() *domain.Invoice {
	return &domain.Invoice{
		ID:              r.ID,
		OrganizationID:  r.OrganizationID,
		CourseReference: r.CourseReference,
		IssuedAt:        r.IssuedAt,
		DueAt:           r.DueAt,
		BaseCost:        money.New(r.BaseCostCents, r.Currency),
		TaxAmount:       money.New(r.TaxAmountCents, r.Currency),
		AmountPaid:      money.New(r.AmountPaidCents, r.Currency),
		ApprovalStatus:  r.ApprovalStatus,
		PaymentStatus:   r.PaymentStatus,
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	query := `
		INSERT INTO invoices (id, organization_id, course_reference, issued_at, due_at,
			base_cost_cents, tax_amount_cents, amount_paid_cents, currency,
			approval_status, payment_status, rejection_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := ext(ctx, r.db).ExecContext(ctx, query,
		invoice.ID,
		invoice.OrganizationID,
		invoice.CourseReference,
		invoice.IssuedAt,
		invoice.DueAt,
		invoice.BaseCost.Cents,
		invoice.TaxAmount.Cents,
		invoice.AmountPaid.Cents,
		invoice.BaseCost.Currency,
		invoice.ApprovalStatus,
		invoice.PaymentStatus,
		invoice.RejectionReason,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)

	return err
}

func (r *invoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	query := `
		SELECT id, organization_id, course_reference, issued_at, due_at,
			base_cost_cents, tax_amount_cents, amount_paid_cents, currency,
			approval_status, payment_status, rejection_reason, created_at, updated_at
		FROM invoices
		WHERE id = $1
	`

	var row invoiceRow
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &row, query, id); err != nil {
		return nil, err
	}

	return row.toDomain(), nil
}

func (r *invoiceRepository) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*domain.Invoice, error) {
	query := `
		SELECT id, organization_id, course_reference, issued_at, due_at,
			base_cost_cents, tax_amount_cents, amount_paid_cents, currency,
			approval_status, payment_status, rejection_reason, created_at, updated_at
		FROM invoices
		WHERE organization_id = $1
		ORDER BY issued_at, id
	`

	var rows []*invoiceRow
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &rows, query, organizationID); err != nil {
		return nil, err
	}

	invoices := make([]*domain.Invoice, 0, len(rows))
	for _, row := range rows {
		invoices = append(invoices, row.toDomain())
	}

	return invoices, nil
}

func (r *invoiceRepository) Update(ctx context.Context, invoice *domain.Invoice) error {
	query := `
		UPDATE invoices
		SET amount_paid_cents = $2, approval_status = $3, payment_status = $4,
			rejection_reason = $5, updated_at = $6
		WHERE id = $1
	`

	_, err := ext(ctx, r.db).ExecContext(ctx, query,
		invoice.ID,
		invoice.AmountPaid.Cents,
		invoice.ApprovalStatus,
		invoice.PaymentStatus,
		invoice.RejectionReason,
		time.Now().UTC(),
	)

	return err
}

func (r *invoiceRepository) ListOverdue(ctx context.Context, now time.Time) ([]*domain.Invoice, error) {
	query := `
		SELECT id, organization_id, course_reference, issued_at, due_at,
			base_cost_cents, tax_amount_cents, amount_paid_cents, currency,
			approval_status, payment_status, rejection_reason, created_at, updated_at
		FROM invoices
		WHERE approval_status = 'approved'
		  AND payment_status NOT IN ('unbilled', 'paid')
		  AND due_at < $1
		ORDER BY due_at, id
	`

	var rows []*invoiceRow
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &rows, query, now); err != nil {
		return nil, err
	}

	invoices := make([]*domain.Invoice, 0, len(rows))
	for _, row := range rows {
		invoices = append(invoices, row.toDomain())
	}

	return invoices, nil
}
