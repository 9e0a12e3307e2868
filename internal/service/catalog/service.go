package catalog

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
)

// Service управляет каталогом товаров: чтение открыто всем, изменения
// требуют административной роли и фиксируются в аудите и outbox.
type Service struct {
	products domain.ProductRepository
	audit    domain.AuditTrail
	outbox   domain.OutboxRepository
	logger   *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, audit domain.AuditTrail, outbox domain.OutboxRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{
		products: products,
		audit:    audit,
		outbox:   outbox,
		logger:   logger,
	}
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(ctx context.Context, ident domain.Identity, name string, priceMinor int64, stock int32) (domain.Product, error) {
	if err := s.requireAdmin(ident); err != nil {
		return domain.Product{}, err
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		PriceMinor: priceMinor,
		Stock:      stock,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	if err := s.products.Create(product); err != nil {
		return domain.Product{}, err
	}

	s.recordAudit(ident, domain.AuditOpCreate, product.ID)
	s.emitProductEvent(kafka.EventTypeProductCreated, product)
	s.logger.WithFields(log.Fields{
		"product_id":   product.ID,
		"product_name": product.Name,
	}).Info("product created")

	return product, nil
}

// UpdateProduct изменяет существующий товар.
func (s *Service) UpdateProduct(ctx context.Context, ident domain.Identity, product domain.Product) (domain.Product, error) {
	if err := s.requireAdmin(ident); err != nil {
		return domain.Product{}, err
	}

	product.Name = strings.TrimSpace(product.Name)
	product.UpdatedAt = time.Now().UTC()
	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	if err := s.products.Update(product); err != nil {
		return domain.Product{}, err
	}

	s.recordAudit(ident, domain.AuditOpUpdate, product.ID)
	s.emitProductEvent(kafka.EventTypeProductUpdated, product)

	return product, nil
}

// DeleteProduct убирает товар из каталога. Существующие заказы и продажи
// остаются: имя и сумма в них денормализованы.
func (s *Service) DeleteProduct(ctx context.Context, ident domain.Identity, id string) error {
	if err := s.requireAdmin(ident); err != nil {
		return err
	}

	product, err := s.products.Get(id)
	if err != nil {
		return err
	}
	if err := s.products.Delete(id); err != nil {
		return err
	}

	s.recordAudit(ident, domain.AuditOpDelete, id)
	s.emitProductEvent(kafka.EventTypeProductDeleted, product)
	s.logger.WithFields(log.Fields{
		"product_id":   id,
		"product_name": product.Name,
	}).Info("product deleted")

	return nil
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.products.Get(id)
}

// ListProducts возвращает каталог целиком.
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.products.List()
}

// ListLowStock возвращает товары с остатком ниже порога (админская выборка).
func (s *Service) ListLowStock(ctx context.Context, ident domain.Identity, threshold int32) ([]domain.Product, error) {
	if err := s.requireAdmin(ident); err != nil {
		return nil, err
	}
	return s.products.ListLowStock(threshold)
}

func (s *Service) requireAdmin(ident domain.Identity) error {
	if !ident.Authenticated() {
		return domain.ErrUnauthenticated
	}
	if !ident.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

func (s *Service) recordAudit(ident domain.Identity, op domain.AuditOp, productID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(domain.AuditEntry{
		Op:       op,
		Entity:   "product",
		EntityID: productID,
		Actor:    ident.CustomerID,
	}); err != nil {
		s.logger.WithError(err).WithField("product_id", productID).Warn("audit record failed")
	}
}

func (s *Service) emitProductEvent(eventType kafka.EventType, product domain.Product) {
	if s.outbox == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"product_id":   product.ID,
		"product_name": product.Name,
		"price_minor":  product.PriceMinor,
		"stock":        product.Stock,
	})
	if err != nil {
		s.logger.WithError(err).WithField("product_id", product.ID).Error("marshal product event failed")
		return
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "product",
		AggregateID:   product.ID,
		EventType:     string(eventType),
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"product_id": product.ID,
			"event_type": eventType,
		}).Error("enqueue product event failed")
	}
}
