package stock

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// PriceCart загружает товары корзины и фиксирует их цены.
// Товар должен принадлежать организации, быть активным и предлагать выбранный размер и цвет.
func PriceCart(ctx context.Context, products domain.ProductRepository, orgID string, cart domain.Cart) ([]domain.PricedLine, error) {
	cache := make(map[string]domain.Product, len(cart.Lines))
	lines := make([]domain.PricedLine, 0, len(cart.Lines))

	for i, line := range cart.Lines {
		product, ok := cache[line.ProductID]
		if !ok {
			p, err := products.Get(ctx, line.ProductID)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i, err)
			}
			if p.OrgID != orgID {
				return nil, fmt.Errorf("line %d: %w", i, domain.ErrProductNotFound)
			}
			product = p
			cache[line.ProductID] = p
		}
		if !product.Active {
			return nil, fmt.Errorf("line %d (%s): %w", i, product.SKU, domain.ErrProductInactive)
		}
		if !product.Offers(line.Size, line.Color) {
			return nil, fmt.Errorf("line %d (%s size %s color %s): %w", i, product.SKU, line.Size, line.Color, domain.ErrVariantUnavailable)
		}

		lines = append(lines, domain.PricedLine{
			ProductID:      product.ID,
			SKU:            product.SKU,
			Size:           line.Size,
			Color:          line.Color,
			Qty:            line.Qty,
			UnitPriceMinor: product.PriceMinor,
			UnitCostMinor:  product.CostMinor,
		})
	}
	return lines, nil
}
