package domain

import (
	"context"
	"time"
)

// Tx объединяет операции, доступные внутри одной атомарной единицы.
// Все записи покупки/отмены проходят только через Tx: частично применённое
// состояние снаружи не наблюдаемо.
type Tx interface {
	// ProductByName возвращает товар по имени, удерживая блокировку строки
	// до конца транзакции, или ErrProductNotFound.
	ProductByName(ctx context.Context, name string) (Product, error)
	// ReserveStock проверяет остаток и уменьшает его одним шагом.
	// Возвращает ErrInsufficientStock или ErrProductNotFound.
	ReserveStock(ctx context.Context, productID string, qty int32) error
	// RestoreStock возвращает количество на склад. Для удалённого товара —
	// no-op с ErrProductRetired.
	RestoreStock(ctx context.Context, productID string, qty int32) error
	// InsertOrder сохраняет новый заказ.
	InsertOrder(ctx context.Context, order Order) error
	// OrderForUpdate возвращает заказ, удерживая блокировку строки,
	// или ErrOrderNotFound.
	OrderForUpdate(ctx context.Context, id string) (Order, error)
	// DeleteOrder удаляет заказ; ErrOrderNotFound, если строка уже исчезла.
	DeleteOrder(ctx context.Context, id string) error
	// InsertSale сохраняет запись о продаже.
	InsertSale(ctx context.Context, sale Sale) error
	// DeleteSalesByOrder удаляет продажи заказа.
	DeleteSalesByOrder(ctx context.Context, orderID string) error
	// InsertCancelledOrder добавляет снимок отменённого заказа.
	InsertCancelledOrder(ctx context.Context, rec CancelledOrder) error
	// EnqueueEvent кладёт событие в transactional outbox той же транзакцией.
	EnqueueEvent(ctx context.Context, msg OutboxMessage) error
}

// TxStore предоставляет атомарные единицы для оркестратора покупки/отмены.
type TxStore interface {
	// WithinTx выполняет fn в одной транзакции хранилища: либо все записи
	// фиксируются, либо все откатываются. Конфликт сериализации
	// транслируется в ErrConflictRetryable.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// ProductRepository описывает доступ к каталогу товаров вне атомарного ядра.
type ProductRepository interface {
	Create(product Product) error
	Get(id string) (Product, error)
	List() ([]Product, error)
	// ListLowStock возвращает товары с остатком ниже порога.
	ListLowStock(threshold int32) ([]Product, error)
	Update(product Product) error
	Delete(id string) error
}

// OrderRepository — read-side доступ к заказам для выдачи наружу.
type OrderRepository interface {
	// ListByCustomer возвращает заказы клиента с именем товара и суммой продажи.
	ListByCustomer(customerID string, limit int) ([]OrderView, error)
	// ListAll возвращает все заказы (административная выборка).
	ListAll(limit int) ([]OrderView, error)
}

// SaleRepository — read-side доступ к продажам и отчётным агрегатам.
type SaleRepository interface {
	List(limit int) ([]Sale, error)
	// RevenueTotal возвращает сумму всех продаж в минимальных единицах.
	RevenueTotal() (int64, error)
	// TopProducts возвращает товары по убыванию проданного количества.
	TopProducts(limit int) ([]ProductSales, error)
	// Summary возвращает счётчики для административной панели.
	Summary() (Summary, error)
}

// Summary — агрегаты для административной панели.
type Summary struct {
	Products   int64
	StockTotal int64
	Orders     int64
	Sales      int64
}

// AuditTrail добавляет записи журнала аудита. Вызывается best-effort:
// ошибка логируется и никогда не откатывает завершённую операцию.
type AuditTrail interface {
	Record(entry AuditEntry) error
}

// SessionStore сопоставляет токен сессии с идентичностью вызывающего.
// Записи создаёт внешний auth-сервис; ядро только читает.
type SessionStore interface {
	// Identity возвращает идентичность по токену или ErrUnauthenticated.
	Identity(ctx context.Context, token string) (Identity, error)
	// Put сохраняет сессию с ограниченным временем жизни.
	Put(ctx context.Context, token string, ident Identity, ttl time.Duration) error
	// Delete завершает сессию.
	Delete(ctx context.Context, token string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}
