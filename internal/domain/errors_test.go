package domain_test

import (
	"fmt"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestIsRetryable(t *testing.T) {
	if !domain.IsRetryable(domain.ErrConflictRetryable) {
		t.Fatal("ErrConflictRetryable must be retryable")
	}
	wrapped := fmt.Errorf("purchase: %w", domain.ErrConflictRetryable)
	if !domain.IsRetryable(wrapped) {
		t.Fatal("wrapped ErrConflictRetryable must stay retryable")
	}
	if domain.IsRetryable(domain.ErrInsufficientStock) {
		t.Fatal("ErrInsufficientStock is terminal, not retryable")
	}
}

func TestIsNotFound(t *testing.T) {
	if !domain.IsNotFound(domain.ErrProductNotFound) {
		t.Fatal("ErrProductNotFound must be a not-found error")
	}
	if !domain.IsNotFound(fmt.Errorf("cancel: %w", domain.ErrOrderNotFound)) {
		t.Fatal("wrapped ErrOrderNotFound must stay not-found")
	}
	if domain.IsNotFound(domain.ErrForbidden) {
		t.Fatal("ErrForbidden is not a not-found error")
	}
}

func TestIdentity(t *testing.T) {
	anon := domain.Anonymous()
	if anon.Authenticated() {
		t.Fatal("anonymous identity must not be authenticated")
	}

	customer := domain.Identity{CustomerID: "c-1", Role: domain.RoleCustomer}
	if !customer.Authenticated() {
		t.Fatal("customer identity must be authenticated")
	}
	if customer.IsAdmin() {
		t.Fatal("customer must not hold the admin role")
	}

	admin := domain.Identity{CustomerID: "a-1", Role: domain.RoleAdmin}
	if !admin.IsAdmin() {
		t.Fatal("admin identity must hold the admin role")
	}
}
