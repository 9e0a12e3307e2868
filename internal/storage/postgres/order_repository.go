package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Заказ выдаётся вместе с записью продажи: имя товара и сумма берутся из
// sales, а не из каталога, поэтому выдача переживает удаление товара.
const orderViewQuery = `
	SELECT o.id, o.customer_id, o.product_id, o.qty, o.created_at,
	       COALESCE(s.product_name, ''), COALESCE(s.total_minor, 0)
	FROM orders o
	LEFT JOIN sales s ON s.order_id = o.id
`

func (r *orderRepository) ListByCustomer(customerID string, limit int) ([]domain.OrderView, error) {
	query := orderViewQuery + `
		WHERE o.customer_id = $1
		ORDER BY o.created_at DESC, o.id DESC
	`
	if limit > 0 {
		return r.list(query+" LIMIT $2", customerID, limit)
	}
	return r.list(query, customerID)
}

func (r *orderRepository) ListAll(limit int) ([]domain.OrderView, error) {
	query := orderViewQuery + `
		ORDER BY o.created_at DESC, o.id DESC
	`
	if limit > 0 {
		return r.list(query+" LIMIT $1", limit)
	}
	return r.list(query)
}

func (r *orderRepository) list(query string, args ...any) ([]domain.OrderView, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	views := make([]domain.OrderView, 0)
	for rows.Next() {
		var view domain.OrderView
		if err := rows.Scan(
			&view.ID, &view.CustomerID, &view.ProductID, &view.Qty,
			&view.CreatedAt, &view.ProductName, &view.TotalMinor,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return views, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
