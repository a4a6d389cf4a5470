package domain

import "time"

// AppliedGiftCard — запись о применении подарочной карты к покупателю.
// AmountMinor фиксирует зачисленную сумму (остаток карты на момент применения),
// чтобы снятие могло откатить ровно её.
type AppliedGiftCard struct {
	GiftCardID  string
	Code        string
	AmountMinor int64
	AppliedAt   time.Time
}

// Customer агрегирует данные покупателя, нужные возвратам и подарочным картам.
type Customer struct {
	ID    string
	Email string
	// Registered — только зарегистрированный покупатель может подать
	// заявку на возврат или применить подарочную карту.
	Registered bool
	// Addresses — сохранённые адреса в порядке добавления.
	Addresses []Address
	// GiftCards — применённые подарочные карты; каждая карта не более одного раза.
	GiftCards []AppliedGiftCard
	// GiftBalanceMinor — доступный подарочный баланс покупателя.
	GiftBalanceMinor int64
	// Version используется хранилищем для optimistic locking.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AddressByID ищет адрес среди сохранённых адресов покупателя.
func (c *Customer) AddressByID(id string) (Address, bool) {
	if id == "" {
		return Address{}, false
	}
	for _, addr := range c.Addresses {
		if addr.ID == id {
			return addr, true
		}
	}
	return Address{}, false
}

// AppliedGiftCardByID ищет запись о применении карты по её идентификатору.
func (c *Customer) AppliedGiftCardByID(giftCardID string) (AppliedGiftCard, bool) {
	for _, applied := range c.GiftCards {
		if applied.GiftCardID == giftCardID {
			return applied, true
		}
	}
	return AppliedGiftCard{}, false
}

// HasGiftCardCode сообщает, применена ли уже карта с таким кодом.
func (c *Customer) HasGiftCardCode(code string) bool {
	code = NormalizeCouponCode(code)
	for _, applied := range c.GiftCards {
		if applied.Code == code {
			return true
		}
	}
	return false
}
