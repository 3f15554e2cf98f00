package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	hundred    = decimal.NewFromInt(100)
	maxPercent = decimal.NewFromInt(100)
)

// CartLine — строка корзины кассы.
type CartLine struct {
	ProductID string `json:"product_id"`
	Qty       int32  `json:"qty"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// Cart — состояние корзины, которое касса передаёт в checkout целиком.
type Cart struct {
	Lines []CartLine `json:"lines"`
}

// Validate проверяет, что корзина не пуста и строки заполнены.
func (c Cart) Validate() error {
	if len(c.Lines) == 0 {
		return ErrCartEmpty
	}
	for i, line := range c.Lines {
		if line.ProductID == "" {
			return fmt.Errorf("line %d: %w", i, ErrProductIDRequired)
		}
		if line.Qty <= 0 {
			return fmt.Errorf("line %d: %w", i, ErrItemQtyInvalid)
		}
	}
	return nil
}

// Demand суммирует запрошенное количество по вариантам.
func (c Cart) Demand() map[Variant]int32 {
	demand := make(map[Variant]int32, len(c.Lines))
	for _, line := range c.Lines {
		demand[Variant{ProductID: line.ProductID, Size: line.Size, Color: line.Color}] += line.Qty
	}
	return demand
}

// PricedLine — строка корзины с зафиксированной ценой товара.
type PricedLine struct {
	ProductID      string
	SKU            string
	Size           string
	Color          string
	Qty            int32
	UnitPriceMinor int64
	UnitCostMinor  int64
}

// SubtotalMinor возвращает сумму строки. Переполнение проверяет LinesSubtotal.
func (l PricedLine) SubtotalMinor() int64 {
	return int64(l.Qty) * l.UnitPriceMinor
}

// LinesSubtotal складывает суммы строк и возвращает ErrAmountOverflow,
// если строка или их сумма выходит за пределы int64.
func LinesSubtotal(lines []PricedLine) (int64, error) {
	var subtotal int64
	for i, line := range lines {
		amount := line.SubtotalMinor()
		if line.Qty != 0 && amount/int64(line.Qty) != line.UnitPriceMinor {
			return 0, fmt.Errorf("line %d: %w", i, ErrAmountOverflow)
		}
		if (amount > 0 && subtotal > math.MaxInt64-amount) || (amount < 0 && subtotal < math.MinInt64-amount) {
			return 0, fmt.Errorf("line %d: %w", i, ErrAmountOverflow)
		}
		subtotal += amount
	}
	return subtotal, nil
}

// Totals — итоги чека.
type Totals struct {
	SubtotalMinor   int64
	DiscountPercent decimal.Decimal
	DiscountMinor   int64
	TotalMinor      int64
}

// ValidateDiscount проверяет, что процент скидки в диапазоне [0, 100].
func ValidateDiscount(percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(maxPercent) {
		return fmt.Errorf("%w: got %s", ErrInvalidDiscount, percent.String())
	}
	return nil
}

// ComputeTotals считает подытог, скидку и итог.
// Скидка округляется до минимальной денежной единицы (half away from zero).
func ComputeTotals(lines []PricedLine, discountPercent decimal.Decimal) (Totals, error) {
	if err := ValidateDiscount(discountPercent); err != nil {
		return Totals{}, err
	}

	subtotal, err := LinesSubtotal(lines)
	if err != nil {
		return Totals{}, err
	}

	discount := decimal.NewFromInt(subtotal).
		Mul(discountPercent).
		Div(hundred).
		Round(0).
		IntPart()

	return Totals{
		SubtotalMinor:   subtotal,
		DiscountPercent: discountPercent,
		DiscountMinor:   discount,
		TotalMinor:      subtotal - discount,
	}, nil
}
