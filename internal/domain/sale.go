package domain

import "time"

// Sale — запись о состоявшейся продаже, одна на успешную покупку.
// Неизменяема после создания; удаляется только отменой заказа,
// которая одновременно удаляет сам заказ.
type Sale struct {
	ID string
	// OrderID связывает продажу с породившим её заказом.
	OrderID    string
	CustomerID string
	ProductID  string
	// ProductName денормализовано для отчётности: продажа переживает
	// удаление товара из каталога.
	ProductName string
	Qty         int32
	// TotalMinor — qty * цена за единицу на момент покупки.
	// Последующие изменения цены товара на продажу не влияют.
	TotalMinor int64
	CreatedAt  time.Time
}

// ValidateInvariants проверяет базовые инварианты продажи.
func (s *Sale) ValidateInvariants() []error {
	var errs []error

	if s.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if s.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if s.Qty <= 0 {
		errs = append(errs, ErrQtyInvalid)
	}
	if s.TotalMinor < 0 {
		errs = append(errs, ErrTotalNegative)
	}

	return errs
}

// ProductSales — агрегат для отчёта «самые продаваемые товары».
type ProductSales struct {
	ProductName string
	TotalQty    int64
}
