package memory

import (
	"sort"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// productRepositoryInMemory — реализация ProductRepository поверх Store.
type productRepositoryInMemory struct {
	store *Store
}

// NewProductRepository возвращает in-memory репозиторий каталога.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepositoryInMemory{store: store}
}

// Create сохраняет новый товар, если имя ещё не занято.
func (r *productRepositoryInMemory) Create(product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, existing := range r.store.products {
		if existing.Name == product.Name {
			return domain.ErrDuplicateProduct
		}
	}
	r.store.products[product.ID] = product
	return nil
}

// Get возвращает товар или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(id string) (domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	product, ok := r.store.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// List возвращает товары, отсортированные по имени.
func (r *productRepositoryInMemory) List() ([]domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	result := make([]domain.Product, 0, len(r.store.products))
	for _, product := range r.store.products {
		result = append(result, product)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// ListLowStock возвращает товары с остатком ниже порога.
func (r *productRepositoryInMemory) ListLowStock(threshold int32) ([]domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	result := make([]domain.Product, 0)
	for _, product := range r.store.products {
		if product.Stock < threshold {
			result = append(result, product)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// Update перезаписывает товар; ErrProductNotFound, если его нет.
func (r *productRepositoryInMemory) Update(product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.products[product.ID]; !ok {
		return domain.ErrProductNotFound
	}
	for id, existing := range r.store.products {
		if id != product.ID && existing.Name == product.Name {
			return domain.ErrDuplicateProduct
		}
	}
	product.UpdatedAt = time.Now().UTC()
	r.store.products[product.ID] = product
	return nil
}

// Delete удаляет товар из каталога. Исторические заказы и продажи
// сохраняют идентификатор товара; возврат остатка по ним станет no-op.
func (r *productRepositoryInMemory) Delete(id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.store.products, id)
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
