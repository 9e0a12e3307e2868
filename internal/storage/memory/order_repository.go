package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// orderRepositoryInMemory — read-side доступ к заказам поверх Store.
type orderRepositoryInMemory struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

// ListByCustomer возвращает заказы клиента, обогащённые данными продажи.
func (r *orderRepositoryInMemory) ListByCustomer(customerID string, limit int) ([]domain.OrderView, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	result := make([]domain.OrderView, 0)
	for _, order := range r.store.orders {
		if order.CustomerID != customerID {
			continue
		}
		result = append(result, r.view(order))
	}

	sortViews(result)
	return clip(result, limit), nil
}

// ListAll возвращает все заказы (административная выборка).
func (r *orderRepositoryInMemory) ListAll(limit int) ([]domain.OrderView, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	result := make([]domain.OrderView, 0, len(r.store.orders))
	for _, order := range r.store.orders {
		result = append(result, r.view(order))
	}

	sortViews(result)
	return clip(result, limit), nil
}

// view собирает OrderView: имя товара и сумма берутся из связанной продажи,
// чтобы выдача не зависела от последующих изменений каталога.
func (r *orderRepositoryInMemory) view(order domain.Order) domain.OrderView {
	view := domain.OrderView{Order: order}
	for _, sale := range r.store.sales {
		if sale.OrderID == order.ID {
			view.ProductName = sale.ProductName
			view.TotalMinor = sale.TotalMinor
			break
		}
	}
	return view
}

func sortViews(views []domain.OrderView) {
	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].ID > views[j].ID
	})
}

func clip(views []domain.OrderView, limit int) []domain.OrderView {
	if limit > 0 && len(views) > limit {
		return views[:limit]
	}
	return views
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
