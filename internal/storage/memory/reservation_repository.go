package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

type reservationRepository struct {
	exec executor
}

func (r *reservationRepository) Create(_ context.Context, reservation domain.InventoryReservation) error {
	return r.exec(func(tx *memTx) error {
		put(tx, tx.s.reservations, reservation.ID, reservation)
		return nil
	})
}

func (r *reservationRepository) ListByOrder(_ context.Context, orderID string) ([]domain.InventoryReservation, error) {
	var out []domain.InventoryReservation
	err := r.exec(func(tx *memTx) error {
		for _, res := range tx.s.reservations {
			if res.OrderID == orderID {
				out = append(out, res)
			}
		}
		return nil
	})
	sortReservations(out)
	return out, err
}

func (r *reservationRepository) ListActive(
	_ context.Context,
	after domain.ReservationCursor,
	limit int,
) ([]domain.InventoryReservation, error) {
	var out []domain.InventoryReservation
	err := r.exec(func(tx *memTx) error {
		for _, res := range tx.s.reservations {
			if res.Status.IsActive() && after.After(res) {
				out = append(out, res)
			}
		}
		return nil
	})
	sortReservations(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *reservationRepository) UpdateStatus(_ context.Context, id string, status domain.ReservationStatus) error {
	return r.exec(func(tx *memTx) error {
		res, ok := tx.s.reservations[id]
		if !ok {
			return domain.ErrReservationNotFound
		}
		res.Status = status
		res.UpdatedAt = time.Now().UTC()
		put(tx, tx.s.reservations, id, res)
		return nil
	})
}

func sortReservations(items []domain.InventoryReservation) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

var _ domain.ReservationRepository = (*reservationRepository)(nil)
