package domain

import "time"

// Product — позиция каталога. Name уникально в пределах магазина и служит
// ключом покупки; PriceMinor хранится в минорных единицах валюты.
type Product struct {
	ID   string
	Name string
	// PriceMinor — цена за единицу в минорных единицах, неотрицательная.
	PriceMinor int64
	// Stock — текущий остаток на складе, никогда не опускается ниже нуля.
	Stock     int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты товара.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrProductPriceNegative)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrProductStockNegative)
	}

	return errs
}
