package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Channel различает продажу в магазине и продажу по онлайн-заказу.
type Channel string

const (
	// ChannelOnline — продажа по онлайн-заказу.
	ChannelOnline Channel = "online"
	// ChannelInStore — продажа на кассе.
	ChannelInStore Channel = "fisico"
)

// Valid проверяет, что канал относится к поддерживаемым значениям.
func (c Channel) Valid() bool {
	return c == ChannelOnline || c == ChannelInStore
}

// PaymentMethod — способ оплаты.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodQR       PaymentMethod = "qr"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer, PaymentMethodQR:
		return true
	default:
		return false
	}
}

// Sale — проведённая продажа. После создания не изменяется.
type Sale struct {
	ID              string
	OrgID           string
	LocationID      string
	SellerID        string
	CustomerName    string
	Channel         Channel
	PaymentMethod   PaymentMethod
	OrderID         string // Пусто для продаж без онлайн-заказа.
	SubtotalMinor   int64
	DiscountPercent decimal.Decimal
	DiscountMinor   int64
	TotalMinor      int64
	Items           []SaleLineItem
	CreatedAt       time.Time
}

// SaleLineItem — позиция продажи с точкой, из которой списан товар.
type SaleLineItem struct {
	ID             string
	SaleID         string
	ProductID      string
	SKU            string
	Size           string
	Color          string
	LocationID     string
	Qty            int32
	UnitPriceMinor int64
	UnitCostMinor  int64
	SubtotalMinor  int64
}

// UnitsSold возвращает количество проданных единиц.
func (s *Sale) UnitsSold() int64 {
	var units int64
	for _, item := range s.Items {
		units += int64(item.Qty)
	}
	return units
}

// CostMinor возвращает себестоимость проданного.
func (s *Sale) CostMinor() int64 {
	var cost int64
	for _, item := range s.Items {
		cost += int64(item.Qty) * item.UnitCostMinor
	}
	return cost
}
