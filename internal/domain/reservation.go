package domain

import "time"

// ReservationStatus отражает статус удержания товара под онлайн-заказ.
type ReservationStatus string

const (
	// ReservationStatusReserved — товар придержан, заказ ещё не подтверждён.
	ReservationStatusReserved ReservationStatus = "reserved"
	// ReservationStatusConfirmed — заказ подтверждён, товар ждёт отгрузки.
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	// ReservationStatusReleased — удержание снято, остаток возвращён.
	ReservationStatusReleased ReservationStatus = "released"
	// ReservationStatusCompleted — заказ выполнен, товар ушёл клиенту.
	ReservationStatusCompleted ReservationStatus = "completed"
)

// IsActive сообщает, держит ли резерв остаток.
func (s ReservationStatus) IsActive() bool {
	return s == ReservationStatusReserved || s == ReservationStatusConfirmed
}

// InventoryReservation — удержание остатка конкретного варианта в точке под заказ.
type InventoryReservation struct {
	ID         string
	OrderID    string
	ProductID  string
	LocationID string
	Size       string
	Color      string
	Qty        int32
	Status     ReservationStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key возвращает ключ складской записи, из которой удержан товар.
func (r InventoryReservation) Key() StockKey {
	return StockKey{
		Variant:    Variant{ProductID: r.ProductID, Size: r.Size, Color: r.Color},
		LocationID: r.LocationID,
	}
}

// Validate проверяет, корректно ли заполнены ключевые поля резервирования.
func (r *InventoryReservation) Validate() []error {
	var errs []error

	if r.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if r.ProductID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if r.LocationID == "" {
		errs = append(errs, ErrLocationRequired)
	}
	if r.Qty <= 0 {
		errs = append(errs, ErrItemQtyInvalid)
	}

	return errs
}

// ReservationCursor — позиция постраничного обхода активных удержаний по (CreatedAt, ID).
// Нулевое значение означает начало списка.
type ReservationCursor struct {
	CreatedAt time.Time
	ID        string
}

// After сообщает, лежит ли удержание строго после позиции курсора.
func (c ReservationCursor) After(r InventoryReservation) bool {
	if !r.CreatedAt.Equal(c.CreatedAt) {
		return r.CreatedAt.After(c.CreatedAt)
	}
	return r.ID > c.ID
}

// CursorAt возвращает курсор, указывающий на удержание r.
func CursorAt(r InventoryReservation) ReservationCursor {
	return ReservationCursor{CreatedAt: r.CreatedAt, ID: r.ID}
}
