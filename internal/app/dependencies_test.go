package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	return logger.WithField("component", "app-test")
}

func TestNewDependencies_Memory(t *testing.T) {
	cfg := DefaultConfig()

	deps, err := NewDependencies(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer deps.Close()

	if deps.TxStore == nil {
		t.Error("expected TxStore to be initialized")
	}
	if deps.Products == nil {
		t.Error("expected Products to be initialized")
	}
	if deps.Orders == nil {
		t.Error("expected Orders to be initialized")
	}
	if deps.Sales == nil {
		t.Error("expected Sales to be initialized")
	}
	if deps.Audit == nil {
		t.Error("expected Audit to be initialized")
	}
	if deps.Outbox == nil {
		t.Error("expected Outbox to be initialized")
	}
	if deps.Idempotency == nil {
		t.Error("expected Idempotency to be initialized")
	}
	if deps.Sessions == nil {
		t.Error("expected Sessions to be initialized")
	}
	if deps.PostgresStore() != nil {
		t.Error("expected no postgres store for memory driver")
	}
	if deps.RedisSessions() != nil {
		t.Error("expected no redis client without SHOP_REDIS_ADDR")
	}
}

func TestNewDependencies_UnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "cassandra"

	if _, err := NewDependencies(context.Background(), cfg, testLogger()); err == nil {
		t.Error("expected error for unknown storage driver")
	}
}

func TestNewDependencies_NilLogger(t *testing.T) {
	deps, err := NewDependencies(context.Background(), DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer deps.Close()

	if deps.Logger == nil {
		t.Error("expected fallback logger")
	}
}

func TestDependencies_CloseIsIdempotent(t *testing.T) {
	deps, err := NewDependencies(context.Background(), DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deps.Close()
	deps.Close()
}
