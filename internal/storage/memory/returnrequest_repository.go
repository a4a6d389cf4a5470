package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dborovsky/grandnode/internal/domain"
)

// returnRequestRepositoryInMemory — in-memory реализация ReturnRequestRepository.
// Выдача номера и проверка "не более одной открытой заявки по заказу"
// проходят под одним мьютексом, поэтому конкурентные подачи по одному
// заказу не могут завершиться успешно обе.
type returnRequestRepositoryInMemory struct {
	mu         sync.RWMutex
	items      map[string]domain.ReturnRequest
	nextNumber int64
}

// NewReturnRequestRepository создаёт in-memory реализацию ReturnRequestRepository.
func NewReturnRequestRepository() domain.ReturnRequestRepository {
	return &returnRequestRepositoryInMemory{
		items:      make(map[string]domain.ReturnRequest),
		nextNumber: 1,
	}
}

// Create присваивает следующий номер возврата и сохраняет заявку атомарно.
func (r *returnRequestRepositoryInMemory) Create(rr domain.ReturnRequest) (domain.ReturnRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.OrderID == rr.OrderID && existing.Status.Open() {
			return domain.ReturnRequest{}, domain.ErrReturnRequestAlreadyOpen
		}
	}

	if rr.ID == "" {
		rr.ID = uuid.NewString()
	}
	rr.ReturnNumber = r.nextNumber
	r.nextNumber++

	now := time.Now().UTC()
	if rr.CreatedAt.IsZero() {
		rr.CreatedAt = now
	}
	rr.UpdatedAt = now

	r.items[rr.ID] = cloneReturnRequest(rr)
	return cloneReturnRequest(rr), nil
}

// Get возвращает заявку или ErrReturnRequestNotFound, если её нет.
func (r *returnRequestRepositoryInMemory) Get(id string) (domain.ReturnRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rr, ok := r.items[id]
	if !ok {
		return domain.ReturnRequest{}, domain.ErrReturnRequestNotFound
	}
	return cloneReturnRequest(rr), nil
}

// GetOpenByOrder возвращает открытую заявку по заказу, если она есть.
func (r *returnRequestRepositoryInMemory) GetOpenByOrder(orderID string) (domain.ReturnRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rr := range r.items {
		if rr.OrderID == orderID && rr.Status.Open() {
			return cloneReturnRequest(rr), nil
		}
	}
	return domain.ReturnRequest{}, domain.ErrReturnRequestNotFound
}

// ListByCustomer возвращает заявки покупателя, новые первыми.
func (r *returnRequestRepositoryInMemory) ListByCustomer(customerID string, limit int) ([]domain.ReturnRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ReturnRequest, 0, len(r.items))
	for _, rr := range r.items {
		if rr.CustomerID != customerID {
			continue
		}
		result = append(result, cloneReturnRequest(rr))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ReturnNumber != result[j].ReturnNumber {
			return result[i].ReturnNumber > result[j].ReturnNumber
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает существующую заявку.
func (r *returnRequestRepositoryInMemory) Save(rr domain.ReturnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[rr.ID]; !ok {
		return domain.ErrReturnRequestNotFound
	}
	rr.UpdatedAt = time.Now().UTC()
	r.items[rr.ID] = cloneReturnRequest(rr)
	return nil
}

func cloneReturnRequest(src domain.ReturnRequest) domain.ReturnRequest {
	dst := src
	dst.Items = append([]domain.ReturnItem(nil), src.Items...)
	dst.PickupAddress = cloneAddress(src.PickupAddress)
	if src.PickupDate != nil {
		date := *src.PickupDate
		dst.PickupDate = &date
	}
	return dst
}

var _ domain.ReturnRequestRepository = (*returnRequestRepositoryInMemory)(nil)
