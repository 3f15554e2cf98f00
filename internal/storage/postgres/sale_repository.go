package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

type saleRepository struct {
	q querier
}

const saleColumns = `id, org_id, location_id, seller_id, customer_name, channel, payment_method, order_id,
	subtotal_minor, discount_percent, discount_minor, total_minor, created_at`

func (r *saleRepository) Create(ctx context.Context, sale domain.Sale) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return atomic(ctx, r.q, func(q querier) error {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO sales (`+saleColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`,
			sale.ID, sale.OrgID, sale.LocationID, sale.SellerID, sale.CustomerName,
			string(sale.Channel), string(sale.PaymentMethod), nullString(sale.OrderID),
			sale.SubtotalMinor, sale.DiscountPercent, sale.DiscountMinor, sale.TotalMinor, sale.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}

		for i, item := range sale.Items {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO sale_line_items (
					id, sale_id, position, product_id, sku, size, color, location_id,
					qty, unit_price_minor, unit_cost_minor, subtotal_minor
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			`,
				item.ID, sale.ID, i, item.ProductID, item.SKU, item.Size, item.Color, item.LocationID,
				item.Qty, item.UnitPriceMinor, item.UnitCostMinor, item.SubtotalMinor,
			); err != nil {
				return fmt.Errorf("insert sale line item: %w", err)
			}
		}
		return nil
	})
}

func (r *saleRepository) Get(ctx context.Context, id string) (domain.Sale, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var sale domain.Sale
	if err := scanSale(r.q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id), &sale); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, domain.ErrSaleNotFound
		}
		return domain.Sale{}, fmt.Errorf("select sale: %w", err)
	}

	items, err := r.loadItems(ctx, []string{sale.ID})
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Items = items[sale.ID]
	return sale, nil
}

func (r *saleRepository) List(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.OrgID != "" {
		add("org_id = $%d", filter.OrgID)
	}
	if filter.LocationID != "" {
		add("location_id = $%d", filter.LocationID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	sales, ids, err := r.querySales(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return sales, nil
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

func (r *saleRepository) querySales(ctx context.Context, query string, args []any) ([]domain.Sale, []string, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var sale domain.Sale
		if err := scanSale(rows, &sale); err != nil {
			return nil, nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate sales: %w", err)
	}
	return sales, ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner, sale *domain.Sale) error {
	var (
		channel, method string
		orderID         sql.NullString
	)
	if err := row.Scan(
		&sale.ID, &sale.OrgID, &sale.LocationID, &sale.SellerID, &sale.CustomerName,
		&channel, &method, &orderID,
		&sale.SubtotalMinor, &sale.DiscountPercent, &sale.DiscountMinor, &sale.TotalMinor, &sale.CreatedAt,
	); err != nil {
		return err
	}
	sale.Channel = domain.Channel(channel)
	sale.PaymentMethod = domain.PaymentMethod(method)
	sale.OrderID = orderID.String
	return nil
}

func (r *saleRepository) loadItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleLineItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, sale_id, product_id, sku, size, color, location_id,
		       qty, unit_price_minor, unit_cost_minor, subtotal_minor
		FROM sale_line_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position
	`, saleIDs)
	if err != nil {
		return nil, fmt.Errorf("load sale items: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.SaleLineItem, len(saleIDs))
	for rows.Next() {
		var item domain.SaleLineItem
		if err := rows.Scan(
			&item.ID, &item.SaleID, &item.ProductID, &item.SKU, &item.Size, &item.Color, &item.LocationID,
			&item.Qty, &item.UnitPriceMinor, &item.UnitCostMinor, &item.SubtotalMinor,
		); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		result[item.SaleID] = append(result[item.SaleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale items: %w", err)
	}
	return result, nil
}

var _ domain.SaleRepository = (*saleRepository)(nil)
