package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/storage/memory"
)

func seedRecord(t *testing.T, store *memory.Store, location string, qty int32) domain.InventoryRecord {
	t.Helper()
	rec, err := store.Inventory().Upsert(context.Background(), domain.InventoryRecord{
		OrgID:      "org-1",
		ProductID:  "p-1",
		LocationID: location,
		Size:       "M",
		Color:      "negro",
		Quantity:   qty,
		MinStock:   1,
	})
	require.NoError(t, err)
	return rec
}

func TestStore_WithinTxRollsBackEveryWrite(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rec := seedRecord(t, store, "loc-1", 5)
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.Inventory().SetQuantity(ctx, rec.ID, 2))
		require.NoError(t, tx.Sales().Create(ctx, domain.Sale{ID: "sale-1", OrgID: "org-1"}))
		_, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{EventType: domain.EventSaleCompleted})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := store.Inventory().GetForUpdate(ctx, rec.Key())
	require.NoError(t, err)
	require.Equal(t, int32(5), after.Quantity)

	_, err = store.Sales().Get(ctx, "sale-1")
	require.ErrorIs(t, err, domain.ErrSaleNotFound)
	require.Empty(t, store.PendingOutbox())
}

func TestStore_WithinTxCommits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rec := seedRecord(t, store, "loc-1", 5)

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Inventory().SetQuantity(ctx, rec.ID, 3)
	})
	require.NoError(t, err)

	after, err := store.Inventory().GetForUpdate(ctx, rec.Key())
	require.NoError(t, err)
	require.Equal(t, int32(3), after.Quantity)
}

func TestStore_WithinTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rec := seedRecord(t, store, "loc-1", 5)

	require.Panics(t, func() {
		_ = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			_ = tx.Inventory().SetQuantity(ctx, rec.ID, 0)
			panic("unexpected")
		})
	})

	after, err := store.Inventory().GetForUpdate(ctx, rec.Key())
	require.NoError(t, err)
	require.Equal(t, int32(5), after.Quantity)
}

func TestInventoryRepository_ListVariantOrderedByLocation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRecord(t, store, "loc-c", 1)
	seedRecord(t, store, "loc-a", 2)
	seedRecord(t, store, "loc-b", 3)

	records, err := store.Inventory().ListVariantForUpdate(ctx, "org-1", domain.Variant{ProductID: "p-1", Size: "M", Color: "negro"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "loc-a", records[0].LocationID)
	require.Equal(t, "loc-b", records[1].LocationID)
	require.Equal(t, "loc-c", records[2].LocationID)

	other, err := store.Inventory().ListVariantForUpdate(ctx, "org-2", domain.Variant{ProductID: "p-1", Size: "M", Color: "negro"})
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestInventoryRepository_UpsertKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	first := seedRecord(t, store, "loc-1", 5)
	second := seedRecord(t, store, "loc-1", 9)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int32(9), second.Quantity)

	require.ErrorIs(t, store.Inventory().SetQuantity(ctx, first.ID, -1), domain.ErrNegativeQuantity)
}

func TestProductRepository_DuplicateSKU(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Products()

	require.NoError(t, repo.Create(ctx, domain.Product{ID: "p-1", OrgID: "org-1", SKU: "LH-0001", Name: "Remera", Sizes: []string{"M"}}))
	require.ErrorIs(t, repo.Create(ctx, domain.Product{ID: "p-2", OrgID: "org-1", SKU: "LH-0001", Name: "Otra"}), domain.ErrDuplicateSKU)
	require.NoError(t, repo.Create(ctx, domain.Product{ID: "p-3", OrgID: "org-2", SKU: "LH-0001", Name: "Remera"}))

	got, err := repo.GetBySKU(ctx, "org-1", "LH-0001")
	require.NoError(t, err)
	require.Equal(t, "p-1", got.ID)

	got.Sizes[0] = "XL"
	again, err := repo.Get(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, "M", again.Sizes[0])
}

func newOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "order-1",
		OrgID:         "org-1",
		CustomerName:  "Ana",
		PaymentMethod: domain.PaymentMethodCard,
		Status:        domain.OrderStatusPending,
		AmountMinor:   500,
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "p-1", SKU: "LH-0001", Size: "M", Qty: 5, PriceMinor: 100, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepository_SaveOptimisticLock(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Orders()
	order := newOrder()
	require.NoError(t, repo.Create(ctx, order))

	stored, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)

	stored.Status = domain.OrderStatusConfirmed
	require.NoError(t, repo.Save(ctx, stored))

	// Повторное сохранение со старой версией должно упасть.
	require.ErrorIs(t, repo.Save(ctx, stored), domain.ErrOrderVersionConflict)

	reloaded, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), reloaded.Version)
}

func TestOrderRepository_ListFiltersAndLimits(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Orders()

	for i, status := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusPending, domain.OrderStatusShipped} {
		order := newOrder()
		order.ID = string(rune('a' + i))
		order.Status = status
		order.CreatedAt = order.CreatedAt.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, order))
	}

	pending, err := repo.List(ctx, domain.OrderFilter{OrgID: "org-1", Status: domain.OrderStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "b", pending[0].ID)

	limited, err := repo.List(ctx, domain.OrderFilter{OrgID: "org-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "c", limited[0].ID)
}

func TestOutboxRepository_FIFOAndStats(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Outbox()

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{EventType: "first"})
	require.NoError(t, err)
	second, err := repo.Enqueue(ctx, domain.OutboxMessage{EventType: "second"})
	require.NoError(t, err)

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, repo.MarkSent(ctx, first.ID))
	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)

	require.NoError(t, repo.MarkFailed(ctx, second.ID))
	require.ErrorIs(t, repo.MarkSent(ctx, "missing"), domain.ErrOutboxMessageNotFound)

	// Повторная отметка не возвращает сообщение в backlog.
	require.NoError(t, repo.MarkSent(ctx, second.ID))
	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func TestReservationRepository_ListActive(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Reservations()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, domain.InventoryReservation{ID: "r-1", OrderID: "o-1", Status: domain.ReservationStatusReserved, CreatedAt: now}))
	require.NoError(t, repo.Create(ctx, domain.InventoryReservation{ID: "r-2", OrderID: "o-1", Status: domain.ReservationStatusReleased, CreatedAt: now}))

	require.NoError(t, repo.Create(ctx, domain.InventoryReservation{ID: "r-3", OrderID: "o-2", Status: domain.ReservationStatusReserved, CreatedAt: now.Add(time.Second)}))

	active, err := repo.ListActive(ctx, domain.ReservationCursor{}, 10)
	require.NoError(t, err)
	require.Len(t, active, 2)

	first, err := repo.ListActive(ctx, domain.ReservationCursor{}, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, "r-1", first[0].ID)

	rest, err := repo.ListActive(ctx, domain.CursorAt(first[0]), 1)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "r-3", rest[0].ID)

	tail, err := repo.ListActive(ctx, domain.CursorAt(rest[0]), 1)
	require.NoError(t, err)
	require.Empty(t, tail)

	require.NoError(t, repo.UpdateStatus(ctx, "r-1", domain.ReservationStatusConfirmed))
	byOrder, err := repo.ListByOrder(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, byOrder, 2)
	require.ErrorIs(t, repo.UpdateStatus(ctx, "missing", domain.ReservationStatusReleased), domain.ErrReservationNotFound)
}

func TestTimelineRepository_Chronological(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTimelineRepository()
	now := time.Now().UTC()

	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o-1", From: domain.OrderStatusPending, To: domain.OrderStatusConfirmed, Occurred: now.Add(time.Minute)}))
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o-1", To: domain.OrderStatusPending, Occurred: now}))
	require.ErrorIs(t, repo.Append(ctx, domain.TimelineEvent{To: domain.OrderStatusPending}), domain.ErrOrderIDRequired)
	require.ErrorIs(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o-1", To: "lost"}), domain.ErrInvalidOrderStatus)

	events, err := repo.List(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.True(t, events[0].Placement())
	require.Equal(t, domain.OrderStatusConfirmed, events[1].To)
}
