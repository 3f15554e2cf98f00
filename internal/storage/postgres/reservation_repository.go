package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

type reservationRepository struct {
	q querier
}

const reservationColumns = `id, order_id, product_id, location_id, size, color, qty, status, created_at, updated_at`

func (r *reservationRepository) Create(ctx context.Context, res domain.InventoryReservation) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO inventory_reservations (`+reservationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		res.ID, res.OrderID, res.ProductID, res.LocationID, res.Size, res.Color,
		res.Qty, string(res.Status), res.CreatedAt, res.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *reservationRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.InventoryReservation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM inventory_reservations
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order reservations: %w", err)
	}
	return collectReservations(rows)
}

func (r *reservationRepository) ListActive(
	ctx context.Context,
	after domain.ReservationCursor,
	limit int,
) ([]domain.InventoryReservation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM inventory_reservations
		WHERE status IN ('reserved', 'confirmed')
		  AND (created_at, id) > ($1::timestamptz, $2::text)
		ORDER BY created_at, id
		LIMIT $3
	`, after.CreatedAt, after.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list active reservations: %w", err)
	}
	return collectReservations(rows)
}

func (r *reservationRepository) UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE inventory_reservations
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func collectReservations(rows *sql.Rows) ([]domain.InventoryReservation, error) {
	defer rows.Close()

	result := make([]domain.InventoryReservation, 0)
	for rows.Next() {
		var (
			res    domain.InventoryReservation
			status string
		)
		if err := rows.Scan(
			&res.ID, &res.OrderID, &res.ProductID, &res.LocationID, &res.Size, &res.Color,
			&res.Qty, &status, &res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		res.Status = domain.ReservationStatus(status)
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return result, nil
}

var _ domain.ReservationRepository = (*reservationRepository)(nil)
