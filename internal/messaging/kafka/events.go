package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// События заявок на возврат
	EventTypeReturnSubmitted     EventType = "return_request.submitted"
	EventTypeReturnStatusChanged EventType = "return_request.status_changed"

	// События подарочных карт
	EventTypeGiftCardApplied EventType = "gift_card.applied"
	EventTypeGiftCardRemoved EventType = "gift_card.removed"
)

// Topics для Kafka
const (
	TopicReturnEvents    = "grandnode.returns.events"
	TopicGiftCardEvents  = "grandnode.giftcard.events"
	TopicDeadLetterQueue = "grandnode.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// ReturnEvent представляет событие заявки на возврат
type ReturnEvent struct {
	EventType       EventType              `json:"event_type"`
	ReturnRequestID string                 `json:"return_request_id"`
	ReturnNumber    int64                  `json:"return_number"`
	CustomerID      string                 `json:"customer_id"`
	OrderID         string                 `json:"order_id"`
	Timestamp       time.Time              `json:"timestamp"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// GiftCardEvent представляет событие подарочной карты
type GiftCardEvent struct {
	EventType   EventType              `json:"event_type"`
	GiftCardID  string                 `json:"gift_card_id"`
	Code        string                 `json:"code,omitempty"`
	CustomerID  string                 `json:"customer_id"`
	AmountMinor int64                  `json:"amount_minor"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewReturnEvent создает новое событие заявки на возврат
func NewReturnEvent(eventType EventType, returnRequestID string, returnNumber int64, customerID, orderID string, metadata map[string]interface{}) *ReturnEvent {
	return &ReturnEvent{
		EventType:       eventType,
		ReturnRequestID: returnRequestID,
		ReturnNumber:    returnNumber,
		CustomerID:      customerID,
		OrderID:         orderID,
		Timestamp:       time.Now(),
		Metadata:        metadata,
	}
}

// NewGiftCardEvent создает новое событие подарочной карты
func NewGiftCardEvent(eventType EventType, giftCardID, customerID string, amountMinor int64, metadata map[string]interface{}) *GiftCardEvent {
	return &GiftCardEvent{
		EventType:   eventType,
		GiftCardID:  giftCardID,
		CustomerID:  customerID,
		AmountMinor: amountMinor,
		Timestamp:   time.Now(),
		Metadata:    metadata,
	}
}
