package domain

import (
	"context"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, code int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, code int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// NotificationChannel — канал уведомления клиента.
type NotificationChannel string

const (
	NotificationEmail     NotificationChannel = "email"
	NotificationMessaging NotificationChannel = "messaging"
)

// Notification — сообщение клиенту о смене статуса заказа.
type Notification struct {
	Channel   NotificationChannel `json:"channel"`
	OrderID   string              `json:"order_id"`
	Status    OrderStatus         `json:"status"`
	Recipient string              `json:"recipient"`
	Subject   string              `json:"subject,omitempty"`
	Body      string              `json:"body"`
}

// Notifier доставляет уведомление клиенту.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
