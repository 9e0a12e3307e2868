package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// auditTrailInMemory хранит записи аудита в памяти (для разработки/тестов).
type auditTrailInMemory struct {
	store *Store
}

// NewAuditTrail создаёт in-memory реализацию AuditTrail.
func NewAuditTrail(store *Store) domain.AuditTrail {
	return &auditTrailInMemory{store: store}
}

// Record добавляет запись в журнал аудита.
func (a *auditTrailInMemory) Record(entry domain.AuditEntry) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	a.store.audit = append(a.store.audit, entry)
	return nil
}

// Entries возвращает копию журнала аудита (используется в тестах).
func (s *Store) Entries() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.AuditEntry, len(s.audit))
	copy(result, s.audit)
	return result
}

var _ domain.AuditTrail = (*auditTrailInMemory)(nil)
