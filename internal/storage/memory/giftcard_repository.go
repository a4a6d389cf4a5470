package memory

import (
	"sync"

	"github.com/dborovsky/grandnode/internal/domain"
)

// GiftCardStore — in-memory реализация GiftCardRepository.
// Картами владеет каталог, поэтому запись сюда (Put) выполняют
// фикстуры и тесты, а сам модуль только читает.
type GiftCardStore struct {
	mu     sync.RWMutex
	items  map[string]domain.GiftCard
	byCode map[string]string
}

// NewGiftCardRepository создаёт in-memory реализацию GiftCardRepository.
func NewGiftCardRepository() *GiftCardStore {
	return &GiftCardStore{
		items:  make(map[string]domain.GiftCard),
		byCode: make(map[string]string),
	}
}

// Put сохраняет карту, нормализуя код купона.
func (r *GiftCardStore) Put(card domain.GiftCard) {
	r.mu.Lock()
	defer r.mu.Unlock()

	card.Code = domain.NormalizeCouponCode(card.Code)
	r.items[card.ID] = cloneGiftCard(card)
	r.byCode[card.Code] = card.ID
}

// Get возвращает карту или ErrGiftCardNotFound, если её нет.
func (r *GiftCardStore) Get(id string) (domain.GiftCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	card, ok := r.items[id]
	if !ok {
		return domain.GiftCard{}, domain.ErrGiftCardNotFound
	}
	return cloneGiftCard(card), nil
}

// GetByCode ищет карту по нормализованному коду купона.
func (r *GiftCardStore) GetByCode(code string) (domain.GiftCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[domain.NormalizeCouponCode(code)]
	if !ok {
		return domain.GiftCard{}, domain.ErrGiftCardNotFound
	}
	return cloneGiftCard(r.items[id]), nil
}

func cloneGiftCard(src domain.GiftCard) domain.GiftCard {
	dst := src
	dst.Usage = append([]domain.GiftCardUsage(nil), src.Usage...)
	return dst
}

var _ domain.GiftCardRepository = (*GiftCardStore)(nil)
