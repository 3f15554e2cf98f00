package domain

import "time"

// Product — карточка товара организации.
type Product struct {
	ID         string
	OrgID      string
	SKU        string
	Name       string
	PriceMinor int64
	CostMinor  int64
	Sizes      []string
	Colors     []string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет обязательные поля карточки.
func (p *Product) Validate() []error {
	var errs []error

	if p.SKU == "" {
		errs = append(errs, ErrSKURequired)
	}
	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.PriceMinor < 0 || p.CostMinor < 0 {
		errs = append(errs, ErrPriceNegative)
	}

	return errs
}

// Offers сообщает, продаётся ли товар в указанном размере и цвете.
// Пустой список размеров (цветов) означает отсутствие ограничений.
func (p *Product) Offers(size, color string) bool {
	return allowed(p.Sizes, size) && allowed(p.Colors, color)
}

func allowed(options []string, value string) bool {
	if len(options) == 0 {
		return true
	}
	for _, option := range options {
		if option == value {
			return true
		}
	}
	return false
}
