package app

import (
	"time"

	"github.com/dborovsky/grandnode/internal/domain"
)

// newTestCompletedOrder создаёт завершённый заказ для использования в тестах.
func newTestCompletedOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:          "test-order-1",
		CustomerID:  "test-customer-1",
		Status:      domain.OrderStatusComplete,
		Currency:    "USD",
		AmountMinor: 1000,
		Items: []domain.OrderItem{
			{
				ID:         "item-1",
				SKU:        "SKU-TEST",
				Qty:        1,
				PriceMinor: 1000,
				CreatedAt:  now,
			},
		},
		CompletedAt: now.AddDate(0, 0, -1),
		CreatedAt:   now.AddDate(0, 0, -2),
		UpdatedAt:   now,
	}
}

// newTestCustomer создаёт зарегистрированного покупателя для тестов.
func newTestCustomer() domain.Customer {
	now := time.Now().UTC()
	return domain.Customer{
		ID:         "test-customer-1",
		Email:      "customer@example.com",
		Registered: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
