package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func seedProductForIntegrationTest(t *testing.T, store *Store, name string, price int64, stock int32) domain.Product {
	t.Helper()

	now := time.Now().UTC()
	product := domain.Product{
		ID:         uuid.NewString(),
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

func TestWithinTx_PurchaseFlowCommits(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	product := seedProductForIntegrationTest(t, store, "Widget", 1000, 5)

	orderID := uuid.NewString()
	now := time.Now().UTC()

	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		locked, err := tx.ProductByName(context.Background(), "Widget")
		if err != nil {
			return err
		}
		if err := tx.ReserveStock(context.Background(), locked.ID, 2); err != nil {
			return err
		}
		if err := tx.InsertOrder(context.Background(), domain.Order{
			ID: orderID, CustomerID: "c-1", ProductID: locked.ID, Qty: 2, CreatedAt: now,
		}); err != nil {
			return err
		}
		return tx.InsertSale(context.Background(), domain.Sale{
			ID: uuid.NewString(), OrderID: orderID, CustomerID: "c-1",
			ProductID: locked.ID, ProductName: locked.Name,
			Qty: 2, TotalMinor: 2000, CreatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("purchase tx failed: %v", err)
	}

	got, err := NewProductRepository(store).Get(product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 3 {
		t.Fatalf("expected stock 3, got %d", got.Stock)
	}

	total, err := NewSaleRepository(store).RevenueTotal()
	if err != nil {
		t.Fatalf("revenue total: %v", err)
	}
	if total != 2000 {
		t.Fatalf("expected revenue 2000, got %d", total)
	}
}

func TestWithinTx_RollbackLeavesNoTrace(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	product := seedProductForIntegrationTest(t, store, "Widget", 1000, 5)

	failure := errors.New("boom")
	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		if err := tx.ReserveStock(context.Background(), product.ID, 3); err != nil {
			return err
		}
		if err := tx.InsertOrder(context.Background(), domain.Order{
			ID: uuid.NewString(), CustomerID: "c-1", ProductID: product.ID, Qty: 3, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected injected failure, got %v", err)
	}

	got, err := NewProductRepository(store).Get(product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 5 {
		t.Fatalf("expected stock untouched at 5, got %d", got.Stock)
	}

	orders, err := NewOrderRepository(store).ListAll(0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected no orders after rollback, got %d", len(orders))
	}
}

func TestReserveStock_ConcurrentBuyersNeverOversell(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	product := seedProductForIntegrationTest(t, store, "Widget", 1000, 1)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.WithinTx(context.Background(), func(tx domain.Tx) error {
				return tx.ReserveStock(context.Background(), product.ID, 1)
			})
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrConflictRetryable):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("expected exactly one winner, got succeeded=%d rejected=%d", succeeded, rejected)
	}

	got, err := NewProductRepository(store).Get(product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 0 {
		t.Fatalf("expected stock 0 after single reservation, got %d", got.Stock)
	}
}

func TestEnqueueEvent_VisibleOnlyAfterCommit(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	outbox := NewOutboxRepository(store)

	failure := errors.New("boom")
	_ = store.WithinTx(context.Background(), func(tx domain.Tx) error {
		if err := tx.EnqueueEvent(context.Background(), domain.OutboxMessage{
			AggregateType: "order", AggregateID: uuid.NewString(), EventType: "order.purchased",
		}); err != nil {
			return err
		}
		return failure
	})

	pending, err := outbox.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending events after rollback, got %d", len(pending))
	}

	if err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		return tx.EnqueueEvent(context.Background(), domain.OutboxMessage{
			AggregateType: "order", AggregateID: uuid.NewString(), EventType: "order.purchased",
		})
	}); err != nil {
		t.Fatalf("enqueue tx failed: %v", err)
	}

	pending, err = outbox.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending event after commit, got %d", len(pending))
	}
}
