package domain

import (
	"cmp"
	"strings"
	"time"
)

// Variant — сочетание товара, размера и цвета; остатки ведутся по вариантам.
type Variant struct {
	ProductID string
	Size      string
	Color     string
}

// StockKey однозначно идентифицирует складскую запись варианта в точке продаж.
type StockKey struct {
	Variant
	LocationID string
}

// Compare задаёт общий порядок складских записей: товар, размер, цвет, точка.
// В этом порядке транзакции берут блокировки строк остатка.
func (k StockKey) Compare(other StockKey) int {
	return cmp.Or(
		strings.Compare(k.ProductID, other.ProductID),
		strings.Compare(k.Size, other.Size),
		strings.Compare(k.Color, other.Color),
		strings.Compare(k.LocationID, other.LocationID),
	)
}

// InventoryRecord — остаток варианта в конкретной точке продаж.
type InventoryRecord struct {
	ID         string
	OrgID      string
	ProductID  string
	LocationID string
	Size       string
	Color      string
	Quantity   int32
	MinStock   int32
	UpdatedAt  time.Time
}

// Key возвращает ключ складской записи.
func (r InventoryRecord) Key() StockKey {
	return StockKey{
		Variant:    Variant{ProductID: r.ProductID, Size: r.Size, Color: r.Color},
		LocationID: r.LocationID,
	}
}

// IsLow сообщает, опустился ли остаток до порога минимального запаса.
func (r InventoryRecord) IsLow() bool {
	return r.Quantity <= r.MinStock
}
