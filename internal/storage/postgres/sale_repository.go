package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type saleRepository struct {
	db *sql.DB
}

// NewSaleRepository создаёт PostgreSQL-реализацию SaleRepository.
func NewSaleRepository(store *Store) domain.SaleRepository {
	return &saleRepository{db: store.DB()}
}

func (r *saleRepository) List(limit int) ([]domain.Sale, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, order_id, customer_id, product_id, product_name, qty, total_minor, created_at
		FROM sales
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(
			&sale.ID, &sale.OrderID, &sale.CustomerID, &sale.ProductID,
			&sale.ProductName, &sale.Qty, &sale.TotalMinor, &sale.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sale row: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale rows: %w", err)
	}

	return sales, nil
}

func (r *saleRepository) RevenueTotal() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var total int64
	if err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_minor), 0)
		FROM sales
	`).Scan(&total); err != nil {
		return 0, fmt.Errorf("revenue total query failed: %w", err)
	}

	return total, nil
}

func (r *saleRepository) TopProducts(limit int) ([]domain.ProductSales, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_name, SUM(qty) AS total_qty
		FROM sales
		GROUP BY product_name
		ORDER BY total_qty DESC, product_name
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("top products query failed: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ProductSales, 0, limit)
	for rows.Next() {
		var ps domain.ProductSales
		if err := rows.Scan(&ps.ProductName, &ps.TotalQty); err != nil {
			return nil, fmt.Errorf("scan top product row: %w", err)
		}
		result = append(result, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top product rows: %w", err)
	}

	return result, nil
}

func (r *saleRepository) Summary() (domain.Summary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var summary domain.Summary
	if err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COALESCE(SUM(stock), 0) FROM products),
			(SELECT COUNT(*) FROM orders),
			(SELECT COUNT(*) FROM sales)
	`).Scan(&summary.Products, &summary.StockTotal, &summary.Orders, &summary.Sales); err != nil {
		return domain.Summary{}, fmt.Errorf("summary query failed: %w", err)
	}

	return summary, nil
}

var _ domain.SaleRepository = (*saleRepository)(nil)
