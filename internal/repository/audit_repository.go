package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/courseflow/reconciliation-engine/internal/domain"
)

type auditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) AuditRepository {
	return &auditRepository{db: db}
}

type auditRow struct {
	ID         uuid.UUID `db:"id"`
	EntityType string    `db:"entity_type"`
	EntityID   uuid.UUID `db:"entity_id"`
	Actor      string    `db:"actor"`
	FromState  string    `db:"from_state"`
	ToState    string    `db:"to_state"`
	Reason     string    `db:"reason"`
	OccurredAt time.Time `db:"occurred_at"`
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, entity_type, entity_id, actor, from_state, to_state, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := ext(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.EntityType,
		entry.EntityID,
		entry.Actor,
		entry.FromState,
		entry.ToState,
		entry.Reason,
		entry.OccurredAt,
	)

	return err
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, entity_type, entity_id, actor, from_state, to_state, reason, occurred_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY occurred_at, id
	`

	var rows []*auditRow
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &rows, query, entityType, entityID); err != nil {
		return nil, err
	}

	entries := make([]*domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, &domain.AuditEntry{
			ID:         row.ID,
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			Actor:      row.Actor,
			FromState:  row.FromState,
			ToState:    row.ToState,
			Reason:     row.Reason,
			OccurredAt: row.OccurredAt,
		})
	}

	return entries, nil
}
