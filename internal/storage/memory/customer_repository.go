package memory

import (
	"sync"

	"github.com/dborovsky/grandnode/internal/domain"
)

// customerRepositoryInMemory — in-memory реализация CustomerRepository.
type customerRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Customer
}

// NewCustomerRepository создаёт in-memory реализацию CustomerRepository.
func NewCustomerRepository() domain.CustomerRepository {
	return &customerRepositoryInMemory{items: make(map[string]domain.Customer)}
}

// Create сохраняет нового покупателя, если ID ещё не занят.
func (r *customerRepositoryInMemory) Create(customer domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[customer.ID]; exists {
		return domain.ErrCustomerVersionConflict
	}
	r.items[customer.ID] = cloneCustomer(customer)
	return nil
}

// Get возвращает покупателя или ErrCustomerNotFound, если его нет.
func (r *customerRepositoryInMemory) Get(id string) (domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	customer, ok := r.items[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return cloneCustomer(customer), nil
}

// Save перезаписывает покупателя, проверяя версию (optimistic locking).
// Именно эта проверка делает зачисление/снятие подарочной карты
// атомарным при конкурентных запросах.
func (r *customerRepositoryInMemory) Save(customer domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[customer.ID]
	if !ok {
		return domain.ErrCustomerNotFound
	}
	if current.Version != customer.Version {
		return domain.ErrCustomerVersionConflict
	}
	customer.Version++
	r.items[customer.ID] = cloneCustomer(customer)
	return nil
}

func cloneCustomer(src domain.Customer) domain.Customer {
	dst := src
	dst.Addresses = make([]domain.Address, len(src.Addresses))
	for i, addr := range src.Addresses {
		dst.Addresses[i] = cloneAddress(addr)
	}
	dst.GiftCards = append([]domain.AppliedGiftCard(nil), src.GiftCards...)
	return dst
}

func cloneAddress(src domain.Address) domain.Address {
	dst := src
	dst.Attributes = append([]domain.AddressAttribute(nil), src.Attributes...)
	return dst
}

var _ domain.CustomerRepository = (*customerRepositoryInMemory)(nil)
