package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

type saleRepository struct {
	exec executor
}

func (r *saleRepository) Create(_ context.Context, sale domain.Sale) error {
	return r.exec(func(tx *memTx) error {
		if _, exists := tx.s.sales[sale.ID]; exists {
			return fmt.Errorf("sale %s already exists", sale.ID)
		}
		put(tx, tx.s.sales, sale.ID, cloneSale(sale))
		return nil
	})
}

func (r *saleRepository) Get(_ context.Context, id string) (domain.Sale, error) {
	var out domain.Sale
	err := r.exec(func(tx *memTx) error {
		sale, ok := tx.s.sales[id]
		if !ok {
			return domain.ErrSaleNotFound
		}
		out = cloneSale(sale)
		return nil
	})
	return out, err
}

func (r *saleRepository) List(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	var out []domain.Sale
	err := r.exec(func(tx *memTx) error {
		for _, sale := range tx.s.sales {
			if filter.OrgID != "" && sale.OrgID != filter.OrgID {
				continue
			}
			if filter.LocationID != "" && sale.LocationID != filter.LocationID {
				continue
			}
			if !filter.From.IsZero() && sale.CreatedAt.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && !sale.CreatedAt.Before(filter.To) {
				continue
			}
			out = append(out, cloneSale(sale))
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = append([]domain.SaleLineItem(nil), src.Items...)
	return dst
}

var _ domain.SaleRepository = (*saleRepository)(nil)
