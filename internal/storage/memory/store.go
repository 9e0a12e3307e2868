package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// Store — in-memory хранилище состояния магазина для локальной разработки
// и тестов. Все таблицы живут под одним мьютексом, поэтому WithinTx даёт
// сериализуемые атомарные единицы: либо все записи фиксируются, либо
// состояние откатывается к снимку.
type Store struct {
	mu        sync.Mutex
	products  map[string]domain.Product
	orders    map[string]domain.Order
	sales     map[string]domain.Sale
	cancelled map[string]domain.CancelledOrder
	audit     []domain.AuditEntry
	outbox    map[string]*outboxRecord
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		orders:    make(map[string]domain.Order),
		sales:     make(map[string]domain.Sale),
		cancelled: make(map[string]domain.CancelledOrder),
		outbox:    make(map[string]*outboxRecord),
	}
}

// WithinTx выполняет fn под общим мьютексом хранилища. При ошибке fn или
// отменённом контексте состояние восстанавливается из снимка.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	tx := &storeTx{store: s}

	if err := fn(tx); err != nil {
		s.restore(snap)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.restore(snap)
		return err
	}

	return nil
}

type storeSnapshot struct {
	products  map[string]domain.Product
	orders    map[string]domain.Order
	sales     map[string]domain.Sale
	cancelled map[string]domain.CancelledOrder
	outbox    map[string]*outboxRecord
}

func (s *Store) snapshot() storeSnapshot {
	snap := storeSnapshot{
		products:  make(map[string]domain.Product, len(s.products)),
		orders:    make(map[string]domain.Order, len(s.orders)),
		sales:     make(map[string]domain.Sale, len(s.sales)),
		cancelled: make(map[string]domain.CancelledOrder, len(s.cancelled)),
		outbox:    make(map[string]*outboxRecord, len(s.outbox)),
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.sales {
		snap.sales[k] = v
	}
	for k, v := range s.cancelled {
		snap.cancelled[k] = v
	}
	for k, v := range s.outbox {
		rec := *v
		snap.outbox[k] = &rec
	}
	return snap
}

func (s *Store) restore(snap storeSnapshot) {
	s.products = snap.products
	s.orders = snap.orders
	s.sales = snap.sales
	s.cancelled = snap.cancelled
	s.outbox = snap.outbox
}

// storeTx реализует domain.Tx поверх заблокированного Store.
type storeTx struct {
	store *Store
}

func (t *storeTx) ProductByName(_ context.Context, name string) (domain.Product, error) {
	for _, product := range t.store.products {
		if product.Name == name {
			return product, nil
		}
	}
	return domain.Product{}, domain.ErrProductNotFound
}

func (t *storeTx) ReserveStock(_ context.Context, productID string, qty int32) error {
	product, ok := t.store.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	// Проверка и уменьшение остатка — один шаг под мьютексом хранилища.
	if product.Stock < qty {
		return domain.ErrInsufficientStock
	}
	product.Stock -= qty
	product.UpdatedAt = time.Now().UTC()
	t.store.products[productID] = product
	return nil
}

func (t *storeTx) RestoreStock(_ context.Context, productID string, qty int32) error {
	product, ok := t.store.products[productID]
	if !ok {
		// Товар удалён из каталога: возврат остатка становится no-op.
		return domain.ErrProductRetired
	}
	product.Stock += qty
	product.UpdatedAt = time.Now().UTC()
	t.store.products[productID] = product
	return nil
}

func (t *storeTx) InsertOrder(_ context.Context, order domain.Order) error {
	t.store.orders[order.ID] = order
	return nil
}

func (t *storeTx) OrderForUpdate(_ context.Context, id string) (domain.Order, error) {
	order, ok := t.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (t *storeTx) DeleteOrder(_ context.Context, id string) error {
	if _, ok := t.store.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(t.store.orders, id)
	return nil
}

func (t *storeTx) InsertSale(_ context.Context, sale domain.Sale) error {
	t.store.sales[sale.ID] = sale
	return nil
}

func (t *storeTx) DeleteSalesByOrder(_ context.Context, orderID string) error {
	for id, sale := range t.store.sales {
		if sale.OrderID == orderID {
			delete(t.store.sales, id)
		}
	}
	return nil
}

func (t *storeTx) InsertCancelledOrder(_ context.Context, rec domain.CancelledOrder) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	t.store.cancelled[rec.ID] = rec
	return nil
}

func (t *storeTx) EnqueueEvent(_ context.Context, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.store.outbox[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    "pending",
		createdAt: now,
		updatedAt: now,
	}
	return nil
}

// CancelledOrders возвращает копию всех записей об отменах (для тестов).
func (s *Store) CancelledOrders() []domain.CancelledOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.CancelledOrder, 0, len(s.cancelled))
	for _, rec := range s.cancelled {
		result = append(result, rec)
	}
	return result
}

// PendingEvents возвращает копию всех outbox-сообщений со статусом
// `pending` (для тестов).
func (s *Store) PendingEvents() []domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.OutboxMessage, 0, len(s.outbox))
	for _, rec := range s.outbox {
		if rec.status == "pending" {
			result = append(result, rec.msg)
		}
	}
	return result
}

var _ domain.TxStore = (*Store)(nil)
var _ domain.Tx = (*storeTx)(nil)
