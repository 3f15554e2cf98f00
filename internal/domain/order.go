package domain

import (
	"fmt"
	"time"
)

// OrderStatus описывает жизненный цикл онлайн-заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ждёт подтверждения.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusReserved — товар придержан до подтверждения банковского перевода.
	OrderStatusReserved OrderStatus = "reserved"
	// OrderStatusConfirmed — заказ подтверждён магазином.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusCompleted — заказ получен клиентом.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions — единственный источник правды о допустимых переходах.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusReserved:  {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted: nil,
	OrderStatusCancelled: nil,
}

// ParseOrderStatus приводит строку к статусу заказа.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrderStatus, raw)
	}
	return status, nil
}

// Valid проверяет, что статус известен.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal сообщает, что из статуса нет переходов.
func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// CanTransitionTo проверяет наличие ребра в таблице переходов.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// AllowedTransitions возвращает копию списка допустимых целевых статусов.
func AllowedTransitions(from OrderStatus) []OrderStatus {
	next := orderTransitions[from]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID         string
	OrderID    string
	ProductID  string
	SKU        string
	Size       string
	Color      string
	Qty        int32
	PriceMinor int64
	CreatedAt  time.Time
}

// Order — онлайн-заказ клиента.
type Order struct {
	ID               string
	OrgID            string
	LocationID       string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	ShippingAddress  string
	DeliveryMethod   string
	PaymentMethod    PaymentMethod
	PaymentProofURL  string
	Status           OrderStatus
	Notes            string
	FulfillmentNotes string
	AmountMinor      int64
	Items            []OrderItem
	ManagedBy        string
	ManagedAt        time.Time
	CancelledAt      time.Time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerName == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.PaymentMethod.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// ApplyTransition переводит заказ в новый статус, фиксируя автора и время.
// Для отмены причина, если она передана, записывается в заметки.
func (o *Order) ApplyTransition(target OrderStatus, actorID, reason string, now time.Time) error {
	if !target.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOrderStatus, target)
	}
	if !o.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, target)
	}

	o.Status = target
	o.ManagedBy = actorID
	o.ManagedAt = now
	o.UpdatedAt = now

	if target == OrderStatusCancelled {
		o.CancelledAt = now
		if reason != "" {
			o.Notes = reason
		}
	}
	return nil
}
