// Package stock распределяет списание остатков по складским записям внутри транзакции.
package stock

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// Demand — потребность в количестве одного варианта.
// Пустой LocationID означает, что подходит любая точка.
type Demand struct {
	Variant    domain.Variant
	SKU        string
	Qty        int32
	LocationID string
}

// DemandsFor переводит оценённые строки корзины в потребности с общей точкой списания.
func DemandsFor(lines []domain.PricedLine, locationID string) []Demand {
	out := make([]Demand, len(lines))
	for i, line := range lines {
		out[i] = Demand{
			Variant:    domain.Variant{ProductID: line.ProductID, Size: line.Size, Color: line.Color},
			SKU:        line.SKU,
			Qty:        line.Qty,
			LocationID: locationID,
		}
	}
	return out
}

// Allocator ведёт рабочие копии заблокированных записей и списывает из них количество.
// Изменения пишутся в хранилище только вызовом Apply.
type Allocator struct {
	repo    domain.InventoryRepository
	orgID   string
	records map[string]*domain.InventoryRecord
	byKey   map[domain.StockKey]string
	variant map[domain.Variant][]string
	touched []string
	changed map[string]bool
}

// NewAllocator создаёт распределитель поверх транзакционного репозитория остатков.
func NewAllocator(repo domain.InventoryRepository, orgID string) *Allocator {
	return &Allocator{
		repo:    repo,
		orgID:   orgID,
		records: make(map[string]*domain.InventoryRecord),
		byKey:   make(map[domain.StockKey]string),
		variant: make(map[domain.Variant][]string),
		changed: make(map[string]bool),
	}
}

// Take списывает количество и возвращает запись после списания.
// С фиксированной точкой используется только её запись. Без точки выбирается
// первая точка (по возрастанию location_id), где остатка хватает на всю строку.
func (a *Allocator) Take(ctx context.Context, d Demand) (domain.InventoryRecord, error) {
	if d.Qty <= 0 {
		return domain.InventoryRecord{}, domain.ErrItemQtyInvalid
	}

	if d.LocationID != "" {
		rec, err := a.fixed(ctx, d)
		if err != nil {
			return domain.InventoryRecord{}, err
		}
		return a.consume(rec, d.Qty), nil
	}

	ids, err := a.loadVariant(ctx, d.Variant)
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	var best int32
	for _, id := range ids {
		rec := a.records[id]
		if rec.Quantity >= d.Qty {
			return a.consume(rec, d.Qty), nil
		}
		if rec.Quantity > best {
			best = rec.Quantity
		}
	}
	return domain.InventoryRecord{}, insufficient(d, best)
}

// Lock заранее блокирует все записи, нужные demands, в порядке StockKey.Compare,
// чтобы встречные транзакции с разным порядком строк корзины не ждали друг друга по кругу.
// Отсутствующие записи пропускаются: о нехватке сообщит Take.
func (a *Allocator) Lock(ctx context.Context, demands []Demand) error {
	keys := make([]domain.StockKey, 0, len(demands))
	for _, d := range demands {
		keys = append(keys, domain.StockKey{Variant: d.Variant, LocationID: d.LocationID})
	}
	slices.SortFunc(keys, domain.StockKey.Compare)

	for _, key := range slices.Compact(keys) {
		if key.LocationID == "" {
			if _, err := a.loadVariant(ctx, key.Variant); err != nil {
				return err
			}
			continue
		}
		if _, err := a.lockKey(ctx, key); err != nil && !errors.Is(err, domain.ErrInventoryRecordNotFound) {
			return fmt.Errorf("lock inventory record: %w", err)
		}
	}
	return nil
}

// Touched возвращает изменённые записи в порядке первого списания.
func (a *Allocator) Touched() []domain.InventoryRecord {
	out := make([]domain.InventoryRecord, 0, len(a.touched))
	for _, id := range a.touched {
		out = append(out, *a.records[id])
	}
	return out
}

// Apply записывает новые количества всех изменённых записей.
func (a *Allocator) Apply(ctx context.Context) error {
	for _, id := range a.touched {
		if err := a.repo.SetQuantity(ctx, id, a.records[id].Quantity); err != nil {
			return fmt.Errorf("set quantity for %s: %w", id, err)
		}
	}
	return nil
}

func (a *Allocator) fixed(ctx context.Context, d Demand) (*domain.InventoryRecord, error) {
	rec, err := a.lockKey(ctx, domain.StockKey{Variant: d.Variant, LocationID: d.LocationID})
	if err != nil {
		if errors.Is(err, domain.ErrInventoryRecordNotFound) {
			return nil, insufficient(d, 0)
		}
		return nil, fmt.Errorf("lock inventory record: %w", err)
	}
	if rec.Quantity < d.Qty {
		return nil, insufficient(d, rec.Quantity)
	}
	return rec, nil
}

// lockKey возвращает рабочую копию записи, блокируя её при первом обращении.
// Запись чужой организации считается отсутствующей.
func (a *Allocator) lockKey(ctx context.Context, key domain.StockKey) (*domain.InventoryRecord, error) {
	if id, ok := a.byKey[key]; ok {
		return a.records[id], nil
	}
	rec, err := a.repo.GetForUpdate(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.OrgID != a.orgID {
		return nil, domain.ErrInventoryRecordNotFound
	}
	return a.remember(rec), nil
}

func (a *Allocator) loadVariant(ctx context.Context, v domain.Variant) ([]string, error) {
	if ids, ok := a.variant[v]; ok {
		return ids, nil
	}

	records, err := a.repo.ListVariantForUpdate(ctx, a.orgID, v)
	if err != nil {
		return nil, fmt.Errorf("lock variant records: %w", err)
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, a.remember(rec).ID)
	}
	a.variant[v] = ids
	return ids, nil
}

// remember возвращает рабочую копию, не затирая уже сделанные списания.
func (a *Allocator) remember(rec domain.InventoryRecord) *domain.InventoryRecord {
	if cached, ok := a.records[rec.ID]; ok {
		return cached
	}
	copied := rec
	a.records[rec.ID] = &copied
	a.byKey[rec.Key()] = rec.ID
	return &copied
}

func (a *Allocator) consume(rec *domain.InventoryRecord, qty int32) domain.InventoryRecord {
	rec.Quantity -= qty
	if !a.changed[rec.ID] {
		a.changed[rec.ID] = true
		a.touched = append(a.touched, rec.ID)
	}
	return *rec
}

func insufficient(d Demand, available int32) error {
	return &domain.InsufficientStockError{
		ProductID:  d.Variant.ProductID,
		SKU:        d.SKU,
		Size:       d.Variant.Size,
		Color:      d.Variant.Color,
		LocationID: d.LocationID,
		Requested:  d.Qty,
		Available:  available,
	}
}
