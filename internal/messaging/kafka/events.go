package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// EventType определяет тип события жизненного цикла заказа.
type EventType string

const (
	EventTypeOrderPlaced    EventType = "order.placed"
	EventTypeOrderConfirmed EventType = "order.confirmed"
	EventTypeOrderShipped   EventType = "order.shipped"
	EventTypeOrderCompleted EventType = "order.completed"
	EventTypeOrderCancelled EventType = "order.cancelled"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "retail.order.events"
	TopicSaleEvents      = "retail.sale.events"
	TopicInventoryEvents = "retail.inventory.events"
	TopicLifecycleEvents = "retail.order.lifecycle"
	TopicDeadLetterQueue = "retail.dlq"

	TopicNotificationsEmail     = "retail.notifications.email"
	TopicNotificationsMessaging = "retail.notifications.messaging"
)

// Заголовки сообщений.
const (
	HeaderEventType = "x-event-type"
	HeaderOrgID     = "x-org-id"
)

// OrderEvent представляет событие жизненного цикла заказа.
type OrderEvent struct {
	EventType      EventType      `json:"event_type"`
	OrderID        string         `json:"order_id"`
	OrgID          string         `json:"org_id"`
	Status         string         `json:"status"`
	PreviousStatus string         `json:"previous_status,omitempty"`
	ActorID        string         `json:"actor_id,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// LifecycleEventType сопоставляет статус заказа с типом события.
func LifecycleEventType(status domain.OrderStatus) (EventType, bool) {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusReserved:
		return EventTypeOrderPlaced, true
	case domain.OrderStatusConfirmed:
		return EventTypeOrderConfirmed, true
	case domain.OrderStatusShipped:
		return EventTypeOrderShipped, true
	case domain.OrderStatusCompleted:
		return EventTypeOrderCompleted, true
	case domain.OrderStatusCancelled:
		return EventTypeOrderCancelled, true
	default:
		return "", false
	}
}

// NewOrderEvent создает событие по текущему состоянию заказа.
func NewOrderEvent(order domain.Order, previous domain.OrderStatus, reason string) *OrderEvent {
	eventType, _ := LifecycleEventType(order.Status)
	event := &OrderEvent{
		EventType: eventType,
		OrderID:   order.ID,
		OrgID:     order.OrgID,
		Status:    string(order.Status),
		ActorID:   order.ManagedBy,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
		Metadata: map[string]any{
			"amount_minor": order.AmountMinor,
			"items":        len(order.Items),
		},
	}
	if previous != "" {
		event.PreviousStatus = string(previous)
	}
	return event
}
