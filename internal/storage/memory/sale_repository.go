package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// saleRepositoryInMemory — read-side доступ к продажам поверх Store.
type saleRepositoryInMemory struct {
	store *Store
}

// NewSaleRepository возвращает in-memory репозиторий продаж.
func NewSaleRepository(store *Store) domain.SaleRepository {
	return &saleRepositoryInMemory{store: store}
}

// List возвращает продажи от новых к старым.
func (r *saleRepositoryInMemory) List(limit int) ([]domain.Sale, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	result := make([]domain.Sale, 0, len(r.store.sales))
	for _, sale := range r.store.sales {
		result = append(result, sale)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// RevenueTotal возвращает сумму всех продаж.
func (r *saleRepositoryInMemory) RevenueTotal() (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var total int64
	for _, sale := range r.store.sales {
		total += sale.TotalMinor
	}
	return total, nil
}

// TopProducts возвращает товары по убыванию проданного количества.
func (r *saleRepositoryInMemory) TopProducts(limit int) ([]domain.ProductSales, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	byName := make(map[string]int64)
	for _, sale := range r.store.sales {
		byName[sale.ProductName] += int64(sale.Qty)
	}

	result := make([]domain.ProductSales, 0, len(byName))
	for name, qty := range byName {
		result = append(result, domain.ProductSales{ProductName: name, TotalQty: qty})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalQty != result[j].TotalQty {
			return result[i].TotalQty > result[j].TotalQty
		}
		return result[i].ProductName < result[j].ProductName
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Summary возвращает счётчики для административной панели.
func (r *saleRepositoryInMemory) Summary() (domain.Summary, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	summary := domain.Summary{
		Products: int64(len(r.store.products)),
		Orders:   int64(len(r.store.orders)),
		Sales:    int64(len(r.store.sales)),
	}
	for _, product := range r.store.products {
		summary.StockTotal += int64(product.Stock)
	}
	return summary, nil
}

var _ domain.SaleRepository = (*saleRepositoryInMemory)(nil)
