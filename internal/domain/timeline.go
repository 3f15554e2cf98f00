package domain

import "time"

// TimelineEvent — запись в истории заказа: переход From -> To.
// У первой записи From пустой.
type TimelineEvent struct {
	OrderID  string
	From     OrderStatus
	To       OrderStatus
	Reason   string
	ActorID  string
	Occurred time.Time
}

// Validate проверяет запись перед сохранением.
func (e TimelineEvent) Validate() error {
	if e.OrderID == "" {
		return ErrOrderIDRequired
	}
	if !e.To.Valid() || (e.From != "" && !e.From.Valid()) {
		return ErrInvalidOrderStatus
	}
	return nil
}

// Placement сообщает, что запись фиксирует создание заказа.
func (e TimelineEvent) Placement() bool { return e.From == "" }
