package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func purchaseForTest(t *testing.T, orch Orchestrator, ident domain.Identity, productName string, qty int32) domain.Sale {
	t.Helper()

	sale, err := orch.Purchase(context.Background(), ident, productName, qty)
	if err != nil {
		t.Fatalf("purchase for test: %v", err)
	}
	return sale
}

func TestCancel_RestoresEverything(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	seedProduct(t, store, "Widget", 1000, 5)
	sale := purchaseForTest(t, orch, customer("c-1"), "Widget", 2)

	snapshot, err := orch.Cancel(context.Background(), customer("c-1"), sale.OrderID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if snapshot.OrderID != sale.OrderID || snapshot.Qty != 2 || snapshot.CustomerID != "c-1" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.CancelledAt.IsZero() {
		t.Fatal("snapshot must carry cancellation time")
	}

	product, _ := memory.NewProductRepository(store).Get("product-Widget")
	if product.Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", product.Stock)
	}

	orders, _ := memory.NewOrderRepository(store).ListAll(0)
	if len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
	sales, _ := memory.NewSaleRepository(store).List(0)
	if len(sales) != 0 {
		t.Fatalf("expected no sales, got %d", len(sales))
	}

	cancelled := store.CancelledOrders()
	if len(cancelled) != 1 || cancelled[0].OrderID != sale.OrderID {
		t.Fatalf("unexpected cancelled orders: %+v", cancelled)
	}
}

func TestCancel_SnapshotsCarryDistinctIDs(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	seedProduct(t, store, "Widget", 1000, 5)
	first := purchaseForTest(t, orch, customer("c-1"), "Widget", 1)
	second := purchaseForTest(t, orch, customer("c-1"), "Widget", 1)

	// Снимок получает идентификатор до вставки: хранилище с PRIMARY KEY
	// по id не должно зависеть от собственной генерации.
	firstSnapshot, err := orch.Cancel(context.Background(), customer("c-1"), first.OrderID)
	if err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	secondSnapshot, err := orch.Cancel(context.Background(), customer("c-1"), second.OrderID)
	if err != nil {
		t.Fatalf("second cancel failed: %v", err)
	}

	if firstSnapshot.ID == "" || secondSnapshot.ID == "" {
		t.Fatalf("snapshot ids must be assigned, got %q and %q", firstSnapshot.ID, secondSnapshot.ID)
	}
	if firstSnapshot.ID == secondSnapshot.ID {
		t.Fatalf("snapshot ids must be distinct, both %q", firstSnapshot.ID)
	}

	cancelled := store.CancelledOrders()
	if len(cancelled) != 2 {
		t.Fatalf("expected two cancellation records, got %d", len(cancelled))
	}
}

func TestCancel_ForeignOrderForbidden(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	seedProduct(t, store, "Widget", 1000, 5)
	sale := purchaseForTest(t, orch, customer("c-1"), "Widget", 2)

	_, err := orch.Cancel(context.Background(), customer("c-2"), sale.OrderID)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// Отказ не должен трогать состояние.
	product, _ := memory.NewProductRepository(store).Get("product-Widget")
	if product.Stock != 3 {
		t.Fatalf("expected stock 3, got %d", product.Stock)
	}
	orders, _ := memory.NewOrderRepository(store).ListAll(0)
	if len(orders) != 1 {
		t.Fatalf("expected order to survive, got %d orders", len(orders))
	}
}

func TestCancel_AdminMayCancelAnyOrder(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	seedProduct(t, store, "Widget", 1000, 5)
	sale := purchaseForTest(t, orch, customer("c-1"), "Widget", 2)

	admin := domain.Identity{CustomerID: "staff-1", Role: domain.RoleAdmin}
	if _, err := orch.Cancel(context.Background(), admin, sale.OrderID); err != nil {
		t.Fatalf("admin cancel failed: %v", err)
	}

	product, _ := memory.NewProductRepository(store).Get("product-Widget")
	if product.Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", product.Stock)
	}
}

func TestCancel_UnknownOrder(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	_, err := orch.Cancel(context.Background(), customer("c-1"), "missing")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCancel_SecondAttemptSeesNotFound(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	seedProduct(t, store, "Widget", 1000, 5)
	sale := purchaseForTest(t, orch, customer("c-1"), "Widget", 1)

	if _, err := orch.Cancel(context.Background(), customer("c-1"), sale.OrderID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	_, err := orch.Cancel(context.Background(), customer("c-1"), sale.OrderID)
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on second cancel, got %v", err)
	}

	// Повторная отмена не должна вернуть остаток второй раз.
	product, _ := memory.NewProductRepository(store).Get("product-Widget")
	if product.Stock != 5 {
		t.Fatalf("expected stock 5 after single restore, got %d", product.Stock)
	}
}

func TestCancel_RetiredProductStillCancels(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	seedProduct(t, store, "Widget", 1000, 5)
	sale := purchaseForTest(t, orch, customer("c-1"), "Widget", 2)

	if err := memory.NewProductRepository(store).Delete("product-Widget"); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	snapshot, err := orch.Cancel(context.Background(), customer("c-1"), sale.OrderID)
	if err != nil {
		t.Fatalf("cancel after product retirement failed: %v", err)
	}
	if snapshot.OrderID != sale.OrderID {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	orders, _ := memory.NewOrderRepository(store).ListAll(0)
	if len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
	if cancelled := store.CancelledOrders(); len(cancelled) != 1 {
		t.Fatalf("expected one cancelled order, got %d", len(cancelled))
	}
}

func TestCancel_EmitsOutboxEvent(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	seedProduct(t, store, "Widget", 1000, 5)
	sale := purchaseForTest(t, orch, customer("c-1"), "Widget", 1)

	if _, err := orch.Cancel(context.Background(), customer("c-1"), sale.OrderID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	pending := store.PendingEvents()
	var cancelEvents int
	for _, msg := range pending {
		if msg.EventType == "order.cancelled" {
			cancelEvents++
		}
	}
	if cancelEvents != 1 {
		t.Fatalf("expected one order.cancelled event, got %d (pending %+v)", cancelEvents, pending)
	}
}
