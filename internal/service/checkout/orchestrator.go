package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	maxConflictRetries = 3
	conflictBaseDelay  = 10 * time.Millisecond
)

// Orchestrator проводит покупку и отмену заказа как атомарные операции.
type Orchestrator interface {
	// Purchase резервирует остаток, создаёт заказ и продажу одной
	// транзакцией. Возвращает созданную продажу.
	Purchase(ctx context.Context, ident domain.Identity, productName string, qty int32) (domain.Sale, error)
	// Cancel снимает заказ: возвращает остаток, удаляет продажи,
	// сохраняет снимок отменённого заказа и удаляет сам заказ.
	Cancel(ctx context.Context, ident domain.Identity, orderID string) (domain.CancelledOrder, error)
}

type orchestrator struct {
	store   domain.TxStore
	audit   domain.AuditTrail
	logger  *log.Entry
	metrics *metrics.CheckoutMetrics
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(store domain.TxStore, audit domain.AuditTrail, logger *log.Entry) Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &orchestrator{
		store:   store,
		audit:   audit,
		logger:  logger,
		metrics: metrics.NewCheckoutMetrics(),
	}
}

// NewOrchestratorWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewOrchestratorWithoutMetrics(store domain.TxStore, audit domain.AuditTrail, logger *log.Entry) Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &orchestrator{
		store:  store,
		audit:  audit,
		logger: logger,
	}
}

func (o *orchestrator) Purchase(ctx context.Context, ident domain.Identity, productName string, qty int32) (domain.Sale, error) {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordPurchaseStarted()
	}
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordOperationFinished()
			o.metrics.RecordPurchaseDuration(time.Since(start))
		}
	}()

	if !ident.Authenticated() {
		o.rejectPurchase("unauthenticated")
		return domain.Sale{}, domain.ErrUnauthenticated
	}

	productName = strings.TrimSpace(productName)
	if productName == "" {
		o.rejectPurchase("invalid_input")
		return domain.Sale{}, domain.ErrProductNameRequired
	}
	if qty <= 0 {
		o.rejectPurchase("invalid_input")
		return domain.Sale{}, domain.ErrQtyInvalid
	}

	var sale domain.Sale
	err := o.withConflictRetry(ctx, func() error {
		return o.store.WithinTx(ctx, func(tx domain.Tx) error {
			product, err := tx.ProductByName(ctx, productName)
			if err != nil {
				return err
			}
			if err := tx.ReserveStock(ctx, product.ID, qty); err != nil {
				return err
			}

			now := time.Now().UTC()
			order := domain.Order{
				ID:         uuid.NewString(),
				CustomerID: ident.CustomerID,
				ProductID:  product.ID,
				Qty:        qty,
				CreatedAt:  now,
			}
			if err := tx.InsertOrder(ctx, order); err != nil {
				return err
			}

			sale = domain.Sale{
				ID:          uuid.NewString(),
				OrderID:     order.ID,
				CustomerID:  ident.CustomerID,
				ProductID:   product.ID,
				ProductName: product.Name,
				Qty:         qty,
				TotalMinor:  product.PriceMinor * int64(qty),
				CreatedAt:   now,
			}
			if err := tx.InsertSale(ctx, sale); err != nil {
				return err
			}

			return o.enqueueOrderEvent(ctx, tx, kafka.EventTypeOrderPurchased, order, map[string]interface{}{
				"product_name": sale.ProductName,
				"qty":          sale.Qty,
				"total_minor":  sale.TotalMinor,
			})
		})
	})
	if err != nil {
		return domain.Sale{}, o.classifyPurchaseError(err, productName)
	}

	if o.metrics != nil {
		o.metrics.RecordPurchaseCompleted()
		o.metrics.RecordOutboxEvent()
	}
	o.recordAudit(domain.AuditEntry{
		Op:       domain.AuditOpCreate,
		Entity:   "order",
		EntityID: sale.OrderID,
		Actor:    ident.CustomerID,
	})
	o.logger.WithFields(log.Fields{
		"order_id":     sale.OrderID,
		"customer_id":  ident.CustomerID,
		"product_name": sale.ProductName,
		"qty":          sale.Qty,
		"total_minor":  sale.TotalMinor,
	}).Info("purchase completed")

	return sale, nil
}

func (o *orchestrator) Cancel(ctx context.Context, ident domain.Identity, orderID string) (domain.CancelledOrder, error) {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordCancelDuration(time.Since(start))
		}
	}()

	if !ident.Authenticated() {
		o.rejectCancel("unauthenticated")
		return domain.CancelledOrder{}, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(orderID) == "" {
		o.rejectCancel("invalid_input")
		return domain.CancelledOrder{}, domain.ErrOrderIDRequired
	}

	var snapshot domain.CancelledOrder
	err := o.withConflictRetry(ctx, func() error {
		return o.store.WithinTx(ctx, func(tx domain.Tx) error {
			order, err := tx.OrderForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if order.CustomerID != ident.CustomerID && !ident.IsAdmin() {
				return domain.ErrForbidden
			}

			if err := tx.RestoreStock(ctx, order.ProductID, order.Qty); err != nil {
				// Удалённый товар не блокирует отмену: остаток просто
				// некуда возвращать.
				if !errors.Is(err, domain.ErrProductRetired) {
					return err
				}
				o.logger.WithFields(log.Fields{
					"order_id":   order.ID,
					"product_id": order.ProductID,
				}).Warn("stock not restored, product retired")
			}

			if err := tx.DeleteSalesByOrder(ctx, order.ID); err != nil {
				return err
			}

			snapshot = domain.SnapshotOf(order, time.Now().UTC())
			if err := tx.InsertCancelledOrder(ctx, snapshot); err != nil {
				return err
			}
			if err := tx.DeleteOrder(ctx, order.ID); err != nil {
				return err
			}

			return o.enqueueOrderEvent(ctx, tx, kafka.EventTypeOrderCancelled, order, map[string]interface{}{
				"qty":          order.Qty,
				"cancelled_at": snapshot.CancelledAt.Format(time.RFC3339Nano),
			})
		})
	})
	if err != nil {
		return domain.CancelledOrder{}, o.classifyCancelError(err, orderID)
	}

	if o.metrics != nil {
		o.metrics.RecordCancelCompleted()
		o.metrics.RecordOutboxEvent()
	}
	o.recordAudit(domain.AuditEntry{
		Op:       domain.AuditOpDelete,
		Entity:   "order",
		EntityID: orderID,
		Actor:    ident.CustomerID,
	})
	o.logger.WithFields(log.Fields{
		"order_id":    orderID,
		"customer_id": ident.CustomerID,
	}).Info("order cancelled")

	return snapshot, nil
}

// withConflictRetry повторяет fn при конфликте сериализации с
// экспоненциальной задержкой между попытками.
func (o *orchestrator) withConflictRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, domain.ErrConflictRetryable) {
			return err
		}

		o.logger.WithFields(log.Fields{
			"attempt": attempt + 1,
		}).Warn("transaction conflict, retrying")

		delay := conflictBaseDelay * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (o *orchestrator) enqueueOrderEvent(ctx context.Context, tx domain.Tx, eventType kafka.EventType, order domain.Order, metadata map[string]interface{}) error {
	event := kafka.NewOrderEvent(eventType, order.ID, order.CustomerID, metadata)
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return tx.EnqueueEvent(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     string(eventType),
		Payload:       payload,
	})
}

func (o *orchestrator) classifyPurchaseError(err error, productName string) error {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		o.rejectPurchase("product_not_found")
		o.logger.WithField("product_name", productName).Warn("purchase rejected, product not found")
	case errors.Is(err, domain.ErrInsufficientStock):
		o.rejectPurchase("insufficient_stock")
		o.logger.WithField("product_name", productName).Warn("purchase rejected, insufficient stock")
	case errors.Is(err, domain.ErrConflictRetryable):
		o.rejectPurchase("conflict")
		o.logger.WithField("product_name", productName).Warn("purchase rejected after conflict retries")
	default:
		if o.metrics != nil {
			o.metrics.RecordInternalFailure()
		}
		o.logger.WithError(err).WithField("product_name", productName).Error("purchase failed")
	}
	return err
}

func (o *orchestrator) classifyCancelError(err error, orderID string) error {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		o.rejectCancel("order_not_found")
		o.logger.WithField("order_id", orderID).Warn("cancel rejected, order not found")
	case errors.Is(err, domain.ErrForbidden):
		o.rejectCancel("forbidden")
		o.logger.WithField("order_id", orderID).Warn("cancel rejected, order belongs to another customer")
	case errors.Is(err, domain.ErrConflictRetryable):
		o.rejectCancel("conflict")
		o.logger.WithField("order_id", orderID).Warn("cancel rejected after conflict retries")
	default:
		if o.metrics != nil {
			o.metrics.RecordInternalFailure()
		}
		o.logger.WithError(err).WithField("order_id", orderID).Error("cancel failed")
	}
	return err
}

func (o *orchestrator) rejectPurchase(reason string) {
	if o.metrics != nil {
		o.metrics.RecordPurchaseRejected(reason)
	}
}

func (o *orchestrator) rejectCancel(reason string) {
	if o.metrics != nil {
		o.metrics.RecordCancelRejected(reason)
	}
}

// recordAudit пишет запись аудита после фиксации транзакции. Ошибка журнала
// не откатывает завершённую операцию.
func (o *orchestrator) recordAudit(entry domain.AuditEntry) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Record(entry); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"entity":    entry.Entity,
			"entity_id": entry.EntityID,
		}).Warn("audit record failed")
		return
	}
	if o.metrics != nil {
		o.metrics.RecordAuditEntry()
	}
}

var _ Orchestrator = (*orchestrator)(nil)
