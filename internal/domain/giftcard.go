package domain

import (
	"strings"
	"time"
)

// GiftCardUsage — одно списание с подарочной карты, выполненное заказом.
type GiftCardUsage struct {
	ID          string
	OrderID     string
	AmountMinor int64
	UsedAt      time.Time
}

// GiftCard — подарочная карта с фиксированным остатком, идентифицируемая
// кодом купона. Картами владеет каталог; этот модуль их читает,
// а движение средств отражает на балансе покупателя.
type GiftCard struct {
	ID string
	// Code — нормализованный код купона, уникален в рамках магазина.
	Code string
	// AmountMinor — исходный номинал карты.
	AmountMinor int64
	// BalanceMinor — неизрасходованный остаток; никогда не опускается ниже нуля.
	BalanceMinor int64
	// ValidFrom/ValidTo ограничивают период действия; нулевое значение
	// снимает соответствующую границу.
	ValidFrom time.Time
	ValidTo   time.Time
	Usage     []GiftCardUsage
	CreatedAt time.Time
}

// NormalizeCouponCode приводит код купона к канонической форме:
// пробелы по краям обрезаются, регистр поднимается.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// UsableAt сообщает, действует ли карта в указанный момент времени.
func (g *GiftCard) UsableAt(now time.Time) bool {
	if !g.ValidFrom.IsZero() && now.Before(g.ValidFrom) {
		return false
	}
	if !g.ValidTo.IsZero() && now.After(g.ValidTo) {
		return false
	}
	return true
}

// ConsumedMinor возвращает сумму, уже списанную с карты заказами.
func (g *GiftCard) ConsumedMinor() int64 {
	var sum int64
	for _, usage := range g.Usage {
		sum += usage.AmountMinor
	}
	return sum
}
