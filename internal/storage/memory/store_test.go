package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func seedProduct(t *testing.T, store *Store, name string, price int64, stock int32) domain.Product {
	t.Helper()

	now := time.Now().UTC()
	product := domain.Product{
		ID:         "product-" + name,
		Name:       name,
		PriceMinor: price,
		Stock:      stock,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := NewProductRepository(store).Create(product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func TestWithinTx_CommitsAllWrites(t *testing.T) {
	store := NewStore()
	product := seedProduct(t, store, "Widget", 1000, 5)
	now := time.Now().UTC()

	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		if err := tx.ReserveStock(context.Background(), product.ID, 3); err != nil {
			return err
		}
		if err := tx.InsertOrder(context.Background(), domain.Order{
			ID: "order-1", CustomerID: "c-1", ProductID: product.ID, Qty: 3, CreatedAt: now,
		}); err != nil {
			return err
		}
		return tx.InsertSale(context.Background(), domain.Sale{
			ID: "sale-1", OrderID: "order-1", CustomerID: "c-1",
			ProductID: product.ID, ProductName: product.Name,
			Qty: 3, TotalMinor: 3000, CreatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}

	got, err := NewProductRepository(store).Get(product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", got.Stock)
	}

	sales, err := NewSaleRepository(store).List(0)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 || sales[0].TotalMinor != 3000 {
		t.Fatalf("unexpected sales: %+v", sales)
	}
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	store := NewStore()
	product := seedProduct(t, store, "Widget", 1000, 5)

	failure := errors.New("boom")
	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		if err := tx.ReserveStock(context.Background(), product.ID, 3); err != nil {
			return err
		}
		if err := tx.InsertOrder(context.Background(), domain.Order{
			ID: "order-1", CustomerID: "c-1", ProductID: product.ID, Qty: 3,
		}); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected injected failure, got %v", err)
	}

	// Частично применённые записи не должны быть наблюдаемы.
	got, err := NewProductRepository(store).Get(product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got.Stock)
	}

	orders, err := NewOrderRepository(store).ListAll(0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected no orders after rollback, got %d", len(orders))
	}
}

func TestReserveStock_Insufficient(t *testing.T) {
	store := NewStore()
	product := seedProduct(t, store, "Widget", 1000, 2)

	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		return tx.ReserveStock(context.Background(), product.ID, 3)
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	got, _ := NewProductRepository(store).Get(product.ID)
	if got.Stock != 2 {
		t.Fatalf("stock must be untouched, got %d", got.Stock)
	}
}

func TestReserveStock_UnknownProduct(t *testing.T) {
	store := NewStore()

	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		return tx.ReserveStock(context.Background(), "missing", 1)
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestRestoreStock_RetiredProduct(t *testing.T) {
	store := NewStore()

	var restoreErr error
	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		restoreErr = tx.RestoreStock(context.Background(), "gone", 2)
		// Удалённый товар — мягкое предупреждение, транзакция продолжается.
		if !errors.Is(restoreErr, domain.ErrProductRetired) {
			return restoreErr
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}
	if !errors.Is(restoreErr, domain.ErrProductRetired) {
		t.Fatalf("expected ErrProductRetired, got %v", restoreErr)
	}
}

func TestDeleteOrder_SecondDeleteSeesNotFound(t *testing.T) {
	store := NewStore()
	seedProduct(t, store, "Widget", 1000, 5)

	if err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		return tx.InsertOrder(context.Background(), domain.Order{ID: "order-1", CustomerID: "c-1", ProductID: "p", Qty: 1})
	}); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	if err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		return tx.DeleteOrder(context.Background(), "order-1")
	}); err != nil {
		t.Fatalf("first delete: %v", err)
	}

	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		return tx.DeleteOrder(context.Background(), "order-1")
	})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on second delete, got %v", err)
	}
}

func TestWithinTx_EnqueueEventRollsBack(t *testing.T) {
	store := NewStore()

	failure := errors.New("boom")
	_ = store.WithinTx(context.Background(), func(tx domain.Tx) error {
		if err := tx.EnqueueEvent(context.Background(), domain.OutboxMessage{
			AggregateType: "order", AggregateID: "order-1", EventType: "order.purchased",
		}); err != nil {
			return err
		}
		return failure
	})

	if pending := store.PendingEvents(); len(pending) != 0 {
		t.Fatalf("expected no pending events after rollback, got %d", len(pending))
	}
}
