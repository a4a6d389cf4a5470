package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dborovsky/grandnode/internal/domain"
)

// Aggregate types, по которым outbox-события раскладываются по топикам.
const (
	AggregateReturnRequest = "return_request"
	AggregateGiftCard      = "gift_card"
)

// EventEnvelope — формат, в котором outbox-сообщения лежат в топиках:
// метаданные агрегата сверху, доменная полезная нагрузка во вложенном
// payload. Парсеры консьюмера ожидают ровно эту форму.
type EventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OutboxTopicPublisher публикует outbox-сообщения в Kafka, выбирая
// topic по типу агрегата: возвраты и подарочные карты идут в разные
// топики.
type OutboxTopicPublisher struct {
	producer      *Producer
	returnsTopic  string
	giftCardTopic string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
// Пустые имена топиков заменяются значениями по умолчанию.
func NewOutboxPublisher(producer *Producer, returnsTopic, giftCardTopic string) domain.OutboxPublisher {
	if returnsTopic == "" {
		returnsTopic = TopicReturnEvents
	}
	if giftCardTopic == "" {
		giftCardTopic = TopicGiftCardEvents
	}
	return &OutboxTopicPublisher{
		producer:      producer,
		returnsTopic:  returnsTopic,
		giftCardTopic: giftCardTopic,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := EventEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	return p.producer.PublishEvent(p.topicFor(event), key, envelope)
}

func (p *OutboxTopicPublisher) topicFor(event domain.OutboxMessage) string {
	if event.AggregateType == AggregateGiftCard {
		return p.giftCardTopic
	}
	return p.returnsTopic
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
