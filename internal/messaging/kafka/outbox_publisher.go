package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// OutboxEnvelope — тело outbox-сообщения в Kafka.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewOutboxEnvelope упаковывает сообщение outbox с временем публикации at.
func NewOutboxEnvelope(event domain.OutboxMessage, at time.Time) OutboxEnvelope {
	return OutboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   at,
	}
}

// Key возвращает ключ партиционирования: агрегат, а без него ID сообщения.
func (e OutboxEnvelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// OutboxTopicPublisher публикует outbox-сообщения в Kafka.
// Без фиксированного topic сообщение направляется по типу агрегата.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// TopicForAggregate возвращает topic по умолчанию для типа агрегата.
func TopicForAggregate(aggregateType string) string {
	switch aggregateType {
	case domain.AggregateSale:
		return TopicSaleEvents
	case domain.AggregateInventory:
		return TopicInventoryEvents
	default:
		return TopicOrderEvents
	}
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	if len(event.Payload) == 0 || !json.Valid(event.Payload) {
		return fmt.Errorf("%w: event %s has no valid json payload", domain.ErrEventUndeliverable, event.ID)
	}

	topic := p.topic
	if topic == "" {
		topic = TopicForAggregate(event.AggregateType)
	}

	envelope := NewOutboxEnvelope(event, time.Now().UTC())
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("%w: marshal envelope: %v", domain.ErrEventUndeliverable, err)
	}

	return p.producer.PublishRaw(ctx, topic, envelope.Key(), body, map[string]string{
		HeaderEventType: event.EventType,
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
