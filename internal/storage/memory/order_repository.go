package memory

import (
	"sort"
	"sync"

	"github.com/dborovsky/grandnode/internal/domain"
)

// OrderStore — простая in-memory реализация OrderRepository.
// Заказы сюда попадают извне (Put), модуль возвратов их только читает.
type OrderStore struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() *OrderStore {
	return &OrderStore{items: make(map[string]domain.Order)}
}

// Put сохраняет заказ в read model. Используется фикстурами и тестами;
// в продуктивной схеме заказы реплицируются подсистемой оформления.
func (r *OrderStore) Put(order domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[order.ID] = cloneOrder(order)
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *OrderStore) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByCustomer возвращает заказы покупателя, ограничивая выборку limit (если >0).
func (r *OrderStore) ListByCustomer(customerID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.CustomerID != customerID {
			continue
		}
		result = append(result, cloneOrder(order))
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

// cloneOrder копирует заказ, чтобы избежать непредсказуемых мутаций извне.
func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var _ domain.OrderRepository = (*OrderStore)(nil)
