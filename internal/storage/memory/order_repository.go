package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// orderRepository — in-memory реализация OrderRepository.
type orderRepository struct {
	exec executor
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	return r.exec(func(tx *memTx) error {
		if _, exists := tx.s.orders[order.ID]; exists {
			return domain.ErrOrderVersionConflict
		}
		put(tx, tx.s.orders, order.ID, cloneOrder(order))
		return nil
	})
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	var out domain.Order
	err := r.exec(func(tx *memTx) error {
		order, ok := tx.s.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		out = cloneOrder(order)
		return nil
	})
	return out, err
}

// List возвращает заказы организации, ограничивая выборку limit (если >0).
func (r *orderRepository) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var result []domain.Order
	err := r.exec(func(tx *memTx) error {
		for _, order := range tx.s.orders {
			if filter.OrgID != "" && order.OrgID != filter.OrgID {
				continue
			}
			if filter.Status != "" && order.Status != filter.Status {
				continue
			}
			result = append(result, cloneOrder(order))
		}
		return nil
	})

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, err
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepository) Save(_ context.Context, order domain.Order) error {
	return r.exec(func(tx *memTx) error {
		current, ok := tx.s.orders[order.ID]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if current.Version != order.Version {
			return domain.ErrOrderVersionConflict
		}
		order.Version++
		put(tx, tx.s.orders, order.ID, cloneOrder(order))
		return nil
	})
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var _ domain.OrderRepository = (*orderRepository)(nil)
