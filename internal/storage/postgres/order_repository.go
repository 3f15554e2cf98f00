package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

type orderRepository struct {
	q querier
}

const orderColumns = `id, org_id, location_id, customer_name, customer_email, customer_phone,
	shipping_address, delivery_method, payment_method, payment_proof_url, status, notes,
	fulfillment_notes, amount_minor, managed_by, managed_at, cancelled_at, version, created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return atomic(ctx, r.q, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		`,
			order.ID, order.OrgID, order.LocationID, order.CustomerName, order.CustomerEmail, order.CustomerPhone,
			order.ShippingAddress, order.DeliveryMethod, string(order.PaymentMethod), order.PaymentProofURL,
			string(order.Status), order.Notes, order.FulfillmentNotes, order.AmountMinor, order.ManagedBy,
			nullTime(order.ManagedAt), nullTime(order.CancelledAt), order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderVersionConflict
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range order.Items {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO order_items (
					id, order_id, product_id, sku, size, color, qty, price_minor, created_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			`,
				item.ID, order.ID, item.ProductID, item.SKU, item.Size, item.Color,
				item.Qty, item.PriceMinor, item.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var order domain.Order
	err := scanOrder(r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), &order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE org_id = $1
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
	`
	args := []any{filter.OrgID, string(filter.Status)}
	if filter.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var order domain.Order
		if err := scanOrder(rows, &order); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	// Позиции читаем после закрытия курсора: внутри транзакции одновременно открыт только один.
	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    notes = $2,
		    fulfillment_notes = $3,
		    payment_proof_url = $4,
		    managed_by = $5,
		    managed_at = $6,
		    cancelled_at = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $9
		  AND version = $10
	`,
		string(order.Status),
		order.Notes,
		order.FulfillmentNotes,
		order.PaymentProofURL,
		order.ManagedBy,
		nullTime(order.ManagedAt),
		nullTime(order.CancelledAt),
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func scanOrder(row rowScanner, order *domain.Order) error {
	var (
		method, status         string
		managedAt, cancelledAt sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.OrgID, &order.LocationID, &order.CustomerName, &order.CustomerEmail, &order.CustomerPhone,
		&order.ShippingAddress, &order.DeliveryMethod, &method, &order.PaymentProofURL, &status, &order.Notes,
		&order.FulfillmentNotes, &order.AmountMinor, &order.ManagedBy, &managedAt, &cancelledAt,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return err
	}
	order.PaymentMethod = domain.PaymentMethod(method)
	order.Status = domain.OrderStatus(status)
	if managedAt.Valid {
		order.ManagedAt = managedAt.Time
	}
	if cancelledAt.Valid {
		order.CancelledAt = cancelledAt.Time
	}
	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, sku, size, color, qty, price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.SKU, &item.Size, &item.Color,
			&item.Qty, &item.PriceMinor, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
