package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Типы агрегатов в outbox.
const (
	AggregateSale      = "sale"
	AggregateOrder     = "order"
	AggregateInventory = "inventory"
)

// Типы событий в outbox.
const (
	EventSaleCompleted       = "sale.completed"
	EventInventoryLowStock   = "inventory.low_stock"
	EventStockAdjusted       = "inventory.adjusted"
	EventOrderPlaced         = "order.placed"
	EventOrderStatusChanged  = "order.status_changed"
	EventReservationReleased = "reservation.released"
)

// SaleCompletedPayload — содержимое события о проведённой продаже.
type SaleCompletedPayload struct {
	SaleID        string    `json:"sale_id"`
	OrgID         string    `json:"org_id"`
	LocationID    string    `json:"location_id"`
	SellerID      string    `json:"seller_id"`
	Channel       Channel   `json:"channel"`
	PaymentMethod string    `json:"payment_method"`
	OrderID       string    `json:"order_id,omitempty"`
	TotalMinor    int64     `json:"total_minor"`
	Units         int64     `json:"units"`
	CreatedAt     time.Time `json:"created_at"`
}

// LowStockPayload — остаток варианта опустился до минимального запаса.
type LowStockPayload struct {
	RecordID   string `json:"record_id"`
	ProductID  string `json:"product_id"`
	LocationID string `json:"location_id"`
	Size       string `json:"size"`
	Color      string `json:"color"`
	Quantity   int32  `json:"quantity"`
	MinStock   int32  `json:"min_stock"`
}

// StockAdjustedPayload — ручная корректировка остатка.
type StockAdjustedPayload struct {
	RecordID    string `json:"record_id"`
	ProductID   string `json:"product_id"`
	LocationID  string `json:"location_id"`
	Size        string `json:"size"`
	Color       string `json:"color"`
	OldQuantity int32  `json:"old_quantity"`
	NewQuantity int32  `json:"new_quantity"`
	ActorID     string `json:"actor_id"`
}

// OrderStatusChangedPayload — заказ перешёл в новый статус.
type OrderStatusChangedPayload struct {
	OrderID   string      `json:"order_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	ActorID   string      `json:"actor_id"`
	Reason    string      `json:"reason,omitempty"`
	ChangedAt time.Time   `json:"changed_at"`
}

// OrderPlacedPayload — создан онлайн-заказ.
type OrderPlacedPayload struct {
	OrderID     string      `json:"order_id"`
	Status      OrderStatus `json:"status"`
	AmountMinor int64       `json:"amount_minor"`
	Reserved    int         `json:"reserved_lines"`
}

// ReservationReleasedPayload — удержание снято, остаток возвращён.
type ReservationReleasedPayload struct {
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
	LocationID    string `json:"location_id"`
	Qty           int32  `json:"qty"`
}

// NewOutboxMessage сериализует payload события в сообщение outbox.
func NewOutboxMessage(aggregateType, aggregateID, eventType string, payload any) (OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}, nil
}
