package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в том объёме,
// который нужен модулю возвратов.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата и доставка ещё впереди.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ в обработке (оплачен/собирается/доставляется).
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusComplete — заказ доставлен и закрыт; только с этого статуса возможен возврат.
	OrderStatusComplete OrderStatus = "complete"
	// OrderStatusCancelled — заказ отменён до завершения.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции нужен, чтобы связать с ней строку заявки на возврат.
	ID string
	// SKU — внешний идентификатор товара.
	SKU string
	// Qty — заказанное количество; возврат не может превышать его.
	Qty int32
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Order — read-only представление заказа. Заказами владеет подсистема
// оформления; модуль возвратов их читает, но никогда не изменяет.
type Order struct {
	ID         string
	CustomerID string
	Status     OrderStatus
	// Deleted — мягкое удаление; удалённый заказ недоступен для возврата.
	Deleted     bool
	Currency    string
	AmountMinor int64
	Items       []OrderItem
	// CompletedAt — момент завершения заказа; нулевое значение означает,
	// что заказ ещё не завершён. От него отсчитывается окно возврата.
	CompletedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Item возвращает позицию заказа по её идентификатору.
func (o *Order) Item(orderItemID string) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ID == orderItemID {
			return item, true
		}
	}
	return OrderItem{}, false
}
