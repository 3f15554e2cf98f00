package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

type inventoryRepository struct {
	q querier
}

const inventoryColumns = `id, org_id, product_id, location_id, size, color, quantity, min_stock, updated_at`

func (r *inventoryRepository) GetForUpdate(ctx context.Context, key domain.StockKey) (domain.InventoryRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rec domain.InventoryRecord
	err := r.q.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_records
		WHERE product_id = $1 AND location_id = $2 AND size = $3 AND color = $4
		FOR UPDATE
	`, key.ProductID, key.LocationID, key.Size, key.Color).Scan(inventoryDest(&rec)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryRecord{}, domain.ErrInventoryRecordNotFound
		}
		return domain.InventoryRecord{}, fmt.Errorf("select inventory record: %w", err)
	}
	return rec, nil
}

func (r *inventoryRepository) ListVariantForUpdate(ctx context.Context, orgID string, variant domain.Variant) ([]domain.InventoryRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_records
		WHERE org_id = $1 AND product_id = $2 AND size = $3 AND color = $4
		ORDER BY location_id
		FOR UPDATE
	`, orgID, variant.ProductID, variant.Size, variant.Color)
	if err != nil {
		return nil, fmt.Errorf("lock variant inventory: %w", err)
	}
	return collectInventory(rows)
}

func (r *inventoryRepository) ListByProduct(ctx context.Context, productID string) ([]domain.InventoryRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_records
		WHERE product_id = $1
		ORDER BY location_id, size, color
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list product inventory: %w", err)
	}
	return collectInventory(rows)
}

func (r *inventoryRepository) SetQuantity(ctx context.Context, id string, quantity int32) error {
	if quantity < 0 {
		return domain.ErrNegativeQuantity
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE inventory_records
		SET quantity = $2, updated_at = $3
		WHERE id = $1
	`, id, quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update inventory quantity: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrInventoryRecordNotFound
	}
	return nil
}

func (r *inventoryRepository) Upsert(ctx context.Context, record domain.InventoryRecord) (domain.InventoryRecord, error) {
	if record.Quantity < 0 || record.MinStock < 0 {
		return domain.InventoryRecord{}, domain.ErrNegativeQuantity
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out domain.InventoryRecord
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO inventory_records (`+inventoryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (product_id, location_id, size, color) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    min_stock = EXCLUDED.min_stock,
		    updated_at = EXCLUDED.updated_at
		RETURNING `+inventoryColumns,
		record.ID, record.OrgID, record.ProductID, record.LocationID, record.Size, record.Color,
		record.Quantity, record.MinStock, time.Now().UTC(),
	).Scan(inventoryDest(&out)...)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("upsert inventory record: %w", err)
	}
	return out, nil
}

func inventoryDest(rec *domain.InventoryRecord) []any {
	return []any{
		&rec.ID, &rec.OrgID, &rec.ProductID, &rec.LocationID, &rec.Size, &rec.Color,
		&rec.Quantity, &rec.MinStock, &rec.UpdatedAt,
	}
}

func collectInventory(rows *sql.Rows) ([]domain.InventoryRecord, error) {
	defer rows.Close()

	records := make([]domain.InventoryRecord, 0)
	for rows.Next() {
		var rec domain.InventoryRecord
		if err := rows.Scan(inventoryDest(&rec)...); err != nil {
			return nil, fmt.Errorf("scan inventory record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory records: %w", err)
	}
	return records, nil
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
