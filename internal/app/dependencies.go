package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
	"github.com/vladislavdragonenkov/shop/internal/storage/redis"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	TxStore     domain.TxStore
	Products    domain.ProductRepository
	Orders      domain.OrderRepository
	Sales       domain.SaleRepository
	Audit       domain.AuditTrail
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository
	Sessions    domain.SessionStore
	Logger      *log.Entry

	pg          *postgres.Store
	redisClient *redis.SessionStore
}

// NewDependencies создаёт и инициализирует все зависимости приложения
// согласно конфигурации: postgres или память для данных, Redis или память
// для сессий.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.pg = store
		deps.TxStore = store
		deps.Products = postgres.NewProductRepository(store)
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Sales = postgres.NewSaleRepository(store)
		deps.Audit = postgres.NewAuditTrail(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)
		logger.Info("postgres storage initialized")
	case StorageDriverMemory, "":
		store := memory.NewStore()
		deps.TxStore = store
		deps.Products = memory.NewProductRepository(store)
		deps.Orders = memory.NewOrderRepository(store)
		deps.Sales = memory.NewSaleRepository(store)
		deps.Audit = memory.NewAuditTrail(store)
		deps.Outbox = memory.NewOutboxRepository(store)
		deps.Idempotency = memory.NewIdempotencyRepository()
		logger.Info("in-memory storage initialized")
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		sessions, err := redis.Open(ctx, cfg.RedisAddr)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		deps.redisClient = sessions
		deps.Sessions = sessions
		logger.WithField("addr", cfg.RedisAddr).Info("redis session store initialized")
	} else {
		deps.Sessions = memory.NewSessionStore()
		logger.Info("in-memory session store initialized")
	}

	return deps, nil
}

// Close освобождает ресурсы внешних хранилищ.
func (d *Dependencies) Close() {
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.pg != nil {
		if err := d.pg.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres pool")
		}
	}
}

// PostgresStore возвращает открытый postgres store или nil для памяти.
func (d *Dependencies) PostgresStore() *postgres.Store { return d.pg }

// RedisSessions возвращает Redis session store или nil для памяти.
func (d *Dependencies) RedisSessions() *redis.SessionStore { return d.redisClient }
