package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func makeOrder() domain.Order {
	return domain.Order{
		ID:         "order-1",
		CustomerID: "customer-1",
		ProductID:  "product-1",
		Qty:        3,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no customer",
			mut: func(o *domain.Order) {
				o.CustomerID = ""
			},
			want: domain.ErrCustomerRequired,
		},
		{
			name: "no product",
			mut: func(o *domain.Order) {
				o.ProductID = ""
			},
			want: domain.ErrProductIDRequired,
		},
		{
			name: "qty zero",
			mut: func(o *domain.Order) {
				o.Qty = 0
			},
			want: domain.ErrQtyInvalid,
		},
		{
			name: "qty negative",
			mut: func(o *domain.Order) {
				o.Qty = -1
			},
			want: domain.ErrQtyInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors for %q", tc.name)
			}
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestSnapshotOf(t *testing.T) {
	order := makeOrder()
	cancelledAt := time.Now().UTC()

	rec := domain.SnapshotOf(order, cancelledAt)

	if rec.OrderID != order.ID {
		t.Fatalf("expected order id %q, got %q", order.ID, rec.OrderID)
	}
	if rec.CustomerID != order.CustomerID || rec.ProductID != order.ProductID || rec.Qty != order.Qty {
		t.Fatalf("snapshot lost order fields: %+v", rec)
	}
	if !rec.OrderedAt.Equal(order.CreatedAt) {
		t.Fatalf("expected ordered_at %v, got %v", order.CreatedAt, rec.OrderedAt)
	}
	if !rec.CancelledAt.Equal(cancelledAt) {
		t.Fatalf("expected cancelled_at %v, got %v", cancelledAt, rec.CancelledAt)
	}
}
