package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type auditTrail struct {
	db *sql.DB
}

// NewAuditTrail создаёт PostgreSQL-реализацию AuditTrail.
func NewAuditTrail(store *Store) domain.AuditTrail {
	return &auditTrail{db: store.DB()}
}

func (a *auditTrail) Record(entry domain.AuditEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, op, entity, entity_id, actor, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		entry.ID, string(entry.Op), entry.Entity,
		entry.EntityID, entry.Actor, entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

var _ domain.AuditTrail = (*auditTrail)(nil)
