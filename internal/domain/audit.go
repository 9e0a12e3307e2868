package domain

import "time"

// AuditOp — вид операции для аудита.
type AuditOp string

const (
	AuditOpCreate AuditOp = "create"
	AuditOpUpdate AuditOp = "update"
	AuditOpDelete AuditOp = "delete"
)

// AuditEntry — запись журнала аудита: кто, что и с какой сущностью сделал.
// Записывается best-effort после коммита; ядро её никогда не читает.
type AuditEntry struct {
	ID       string
	Op       AuditOp
	Entity   string
	EntityID string
	// Actor — идентификатор вызывающего (customer id либо служебное имя).
	Actor      string
	OccurredAt time.Time
}
