package domain

import (
	"context"
	"time"
)

// ProductRepository описывает хранилище каталога.
type ProductRepository interface {
	// Create сохраняет товар. Возвращает ErrDuplicateSKU, если SKU уже занят в организации.
	Create(ctx context.Context, product Product) error
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// GetBySKU ищет товар по SKU в рамках организации.
	GetBySKU(ctx context.Context, orgID, sku string) (Product, error)
}

// InventoryRepository описывает хранилище остатков.
type InventoryRepository interface {
	// GetForUpdate возвращает запись и блокирует её до конца транзакции.
	GetForUpdate(ctx context.Context, key StockKey) (InventoryRecord, error)
	// ListVariantForUpdate блокирует все записи варианта, упорядоченные по LocationID.
	ListVariantForUpdate(ctx context.Context, orgID string, variant Variant) ([]InventoryRecord, error)
	// ListByProduct возвращает остатки товара во всех точках.
	ListByProduct(ctx context.Context, productID string) ([]InventoryRecord, error)
	// SetQuantity записывает новый остаток.
	SetQuantity(ctx context.Context, id string, quantity int32) error
	// Upsert создаёт запись или обновляет остаток и порог существующей.
	Upsert(ctx context.Context, record InventoryRecord) (InventoryRecord, error)
}

// SaleFilter ограничивает выборку продаж.
type SaleFilter struct {
	OrgID      string
	LocationID string
	From       time.Time
	To         time.Time
}

// SaleRepository описывает хранилище продаж.
type SaleRepository interface {
	// Create сохраняет продажу вместе с позициями.
	Create(ctx context.Context, sale Sale) error
	// Get возвращает продажу с позициями или ErrSaleNotFound.
	Get(ctx context.Context, id string) (Sale, error)
	// List возвращает продажи за полуинтервал [From, To).
	List(ctx context.Context, filter SaleFilter) ([]Sale, error)
}

// OrderFilter ограничивает выборку заказов.
type OrderFilter struct {
	OrgID  string
	Status OrderStatus
	Limit  int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ с позициями или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы организации, новые первыми.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// ReservationRepository описывает хранилище удержаний под заказы.
type ReservationRepository interface {
	Create(ctx context.Context, reservation InventoryReservation) error
	ListByOrder(ctx context.Context, orderID string) ([]InventoryReservation, error)
	// ListActive возвращает удержания в статусах reserved/confirmed, лежащие после after,
	// старые первыми.
	ListActive(ctx context.Context, after ReservationCursor, limit int) ([]InventoryReservation, error)
	UpdateStatus(ctx context.Context, id string, status ReservationStatus) error
}

// ProfileRepository возвращает профили сотрудников.
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (Profile, error)
	Upsert(ctx context.Context, profile Profile) error
}

// Tx — набор репозиториев, работающих в одной транзакции.
type Tx interface {
	Products() ProductRepository
	Inventory() InventoryRepository
	Sales() SaleRepository
	Orders() OrderRepository
	Reservations() ReservationRepository
	Outbox() OutboxRepository
}

// TxManager выполняет функцию атомарно: либо применяются все записи, либо ни одной.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
