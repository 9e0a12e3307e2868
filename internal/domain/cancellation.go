package domain

import (
	"time"

	"github.com/google/uuid"
)

// CancelledOrder — снимок отменённого заказа.
// Append-only: никогда не изменяется и не удаляется, сохраняет историю
// после того, как строка заказа удалена.
type CancelledOrder struct {
	ID         string
	OrderID    string
	CustomerID string
	ProductID  string
	Qty        int32
	// OrderedAt — исходное время создания заказа.
	OrderedAt   time.Time
	CancelledAt time.Time
}

// SnapshotOf формирует запись об отмене из заказа. Идентификатор
// присваивается здесь: хранилища вставляют запись как есть.
func SnapshotOf(order Order, cancelledAt time.Time) CancelledOrder {
	return CancelledOrder{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		ProductID:   order.ProductID,
		Qty:         order.Qty,
		OrderedAt:   order.CreatedAt,
		CancelledAt: cancelledAt,
	}
}
