package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

type inventoryRepository struct {
	exec executor
}

// GetForUpdate возвращает запись. Блокировка обеспечивается мьютексом хранилища,
// который транзакция держит до завершения.
func (r *inventoryRepository) GetForUpdate(_ context.Context, key domain.StockKey) (domain.InventoryRecord, error) {
	var out domain.InventoryRecord
	err := r.exec(func(tx *memTx) error {
		id, ok := tx.s.stockIndex[key]
		if !ok {
			return domain.ErrInventoryRecordNotFound
		}
		out = tx.s.inventory[id]
		return nil
	})
	return out, err
}

func (r *inventoryRepository) ListVariantForUpdate(_ context.Context, orgID string, variant domain.Variant) ([]domain.InventoryRecord, error) {
	var out []domain.InventoryRecord
	err := r.exec(func(tx *memTx) error {
		for _, rec := range tx.s.inventory {
			if rec.OrgID != orgID || rec.ProductID != variant.ProductID || rec.Size != variant.Size || rec.Color != variant.Color {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	sortByLocation(out)
	return out, err
}

func (r *inventoryRepository) ListByProduct(_ context.Context, productID string) ([]domain.InventoryRecord, error) {
	var out []domain.InventoryRecord
	err := r.exec(func(tx *memTx) error {
		for _, rec := range tx.s.inventory {
			if rec.ProductID == productID {
				out = append(out, rec)
			}
		}
		return nil
	})
	sortByLocation(out)
	return out, err
}

func (r *inventoryRepository) SetQuantity(_ context.Context, id string, quantity int32) error {
	if quantity < 0 {
		return domain.ErrNegativeQuantity
	}
	return r.exec(func(tx *memTx) error {
		rec, ok := tx.s.inventory[id]
		if !ok {
			return domain.ErrInventoryRecordNotFound
		}
		rec.Quantity = quantity
		rec.UpdatedAt = time.Now().UTC()
		put(tx, tx.s.inventory, id, rec)
		return nil
	})
}

func (r *inventoryRepository) Upsert(_ context.Context, record domain.InventoryRecord) (domain.InventoryRecord, error) {
	if record.Quantity < 0 || record.MinStock < 0 {
		return domain.InventoryRecord{}, domain.ErrNegativeQuantity
	}
	var out domain.InventoryRecord
	err := r.exec(func(tx *memTx) error {
		key := record.Key()
		if id, ok := tx.s.stockIndex[key]; ok {
			record.ID = id
			record.OrgID = tx.s.inventory[id].OrgID
		} else if record.ID == "" {
			record.ID = uuid.NewString()
		}
		record.UpdatedAt = time.Now().UTC()
		put(tx, tx.s.inventory, record.ID, record)
		put(tx, tx.s.stockIndex, key, record.ID)
		out = record
		return nil
	})
	return out, err
}

func sortByLocation(records []domain.InventoryRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].LocationID != records[j].LocationID {
			return records[i].LocationID < records[j].LocationID
		}
		if records[i].Size != records[j].Size {
			return records[i].Size < records[j].Size
		}
		return records[i].Color < records[j].Color
	})
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
