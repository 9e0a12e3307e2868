package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// storeTx реализует domain.Tx поверх открытой SQL-транзакции.
type storeTx struct {
	tx *sql.Tx
}

func (t *storeTx) ProductByName(ctx context.Context, name string) (domain.Product, error) {
	var product domain.Product
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, price_minor, stock, created_at, updated_at
		FROM products
		WHERE name = $1
		FOR UPDATE
	`, name).Scan(
		&product.ID, &product.Name, &product.PriceMinor,
		&product.Stock, &product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product for update: %w", err)
	}

	return product, nil
}

// ReserveStock уменьшает остаток одним условным UPDATE: проверка и
// списание происходят в одном шаге, гонка двух покупателей невозможна.
func (t *storeTx) ReserveStock(ctx context.Context, productID string, qty int32) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $1,
		    updated_at = $2
		WHERE id = $3
		  AND stock >= $1
	`, qty, time.Now().UTC(), productID)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve stock rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := t.productExists(ctx, productID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrInsufficientStock
	}

	return nil
}

// RestoreStock возвращает количество на склад. Если товар удалён из
// каталога, операция превращается в no-op с ErrProductRetired.
func (t *storeTx) RestoreStock(ctx context.Context, productID string, qty int32) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $1,
		    updated_at = $2
		WHERE id = $3
	`, qty, time.Now().UTC(), productID)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("restore stock rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductRetired
	}

	return nil
}

func (t *storeTx) InsertOrder(ctx context.Context, order domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, product_id, qty, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, order.ID, order.CustomerID, order.ProductID, order.Qty, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *storeTx) OrderForUpdate(ctx context.Context, id string) (domain.Order, error) {
	var order domain.Order
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, customer_id, product_id, qty, created_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&order.ID, &order.CustomerID, &order.ProductID, &order.Qty, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order for update: %w", err)
	}

	return order, nil
}

func (t *storeTx) DeleteOrder(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete order rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

func (t *storeTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, order_id, customer_id, product_id, product_name, qty, total_minor, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		sale.ID, sale.OrderID, sale.CustomerID, sale.ProductID,
		sale.ProductName, sale.Qty, sale.TotalMinor, sale.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

func (t *storeTx) DeleteSalesByOrder(ctx context.Context, orderID string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM sales WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete sales by order: %w", err)
	}
	return nil
}

func (t *storeTx) InsertCancelledOrder(ctx context.Context, rec domain.CancelledOrder) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cancelled_orders (
			id, order_id, customer_id, product_id, qty, ordered_at, cancelled_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		rec.ID, rec.OrderID, rec.CustomerID, rec.ProductID,
		rec.Qty, rec.OrderedAt, rec.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("insert cancelled order: %w", err)
	}
	return nil
}

// EnqueueEvent кладёт событие в outbox той же транзакцией, что и
// изменения данных: событие публикуется тогда и только тогда, когда
// транзакция зафиксирована.
func (t *storeTx) EnqueueEvent(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now, now)
	if err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}

	return nil
}

func (t *storeTx) productExists(ctx context.Context, productID string) (bool, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1`, productID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check product exists: %w", err)
}

var _ domain.Tx = (*storeTx)(nil)
