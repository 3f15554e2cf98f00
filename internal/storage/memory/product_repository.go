package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

type productRepository struct {
	exec executor
}

func skuKey(orgID, sku string) string {
	return orgID + "|" + sku
}

func (r *productRepository) Create(_ context.Context, product domain.Product) error {
	return r.exec(func(tx *memTx) error {
		if _, exists := tx.s.skuIndex[skuKey(product.OrgID, product.SKU)]; exists {
			return domain.ErrDuplicateSKU
		}
		if _, exists := tx.s.products[product.ID]; exists {
			return domain.ErrDuplicateSKU
		}
		now := time.Now().UTC()
		if product.CreatedAt.IsZero() {
			product.CreatedAt = now
		}
		product.UpdatedAt = now
		put(tx, tx.s.products, product.ID, cloneProduct(product))
		put(tx, tx.s.skuIndex, skuKey(product.OrgID, product.SKU), product.ID)
		return nil
	})
}

func (r *productRepository) Get(_ context.Context, id string) (domain.Product, error) {
	var out domain.Product
	err := r.exec(func(tx *memTx) error {
		product, ok := tx.s.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		out = cloneProduct(product)
		return nil
	})
	return out, err
}

func (r *productRepository) GetBySKU(ctx context.Context, orgID, sku string) (domain.Product, error) {
	var id string
	err := r.exec(func(tx *memTx) error {
		found, ok := tx.s.skuIndex[skuKey(orgID, sku)]
		if !ok {
			return domain.ErrProductNotFound
		}
		id = found
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return r.Get(ctx, id)
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	dst.Sizes = append([]string(nil), src.Sizes...)
	dst.Colors = append([]string(nil), src.Colors...)
	return dst
}

var _ domain.ProductRepository = (*productRepository)(nil)
