package domain

import "time"

// Order представляет ожидающий заказ: кто купил, что и сколько.
// Создаётся атомарно вместе с записью Sale; удаляется только отменой,
// которая одновременно удаляет Sale и возвращает остаток на склад.
type Order struct {
	ID         string
	CustomerID string
	ProductID  string
	// Qty — количество единиц товара, строго положительное.
	Qty       int32
	CreatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.ProductID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if o.Qty <= 0 {
		errs = append(errs, ErrQtyInvalid)
	}

	return errs
}

// OrderView — заказ, обогащённый данными товара для выдачи наружу.
type OrderView struct {
	Order
	ProductName string
	// TotalMinor — сумма по зафиксированной в продаже цене.
	TotalMinor int64
}
