package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// Store — in-memory хранилище для локальной разработки и тестов.
//
// Все таблицы защищены одним мьютексом. Транзакция держит его целиком и ведёт журнал
// обратных операций: при ошибке записи откатываются в обратном порядке.
type Store struct {
	mu sync.Mutex

	products     map[string]domain.Product
	skuIndex     map[string]string
	inventory    map[string]domain.InventoryRecord
	stockIndex   map[domain.StockKey]string
	sales        map[string]domain.Sale
	orders       map[string]domain.Order
	reservations map[string]domain.InventoryReservation
	profiles     map[string]domain.Profile
	outbox       map[string]outboxRecord
	outboxSeq    int64
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		skuIndex:     make(map[string]string),
		inventory:    make(map[string]domain.InventoryRecord),
		stockIndex:   make(map[domain.StockKey]string),
		sales:        make(map[string]domain.Sale),
		orders:       make(map[string]domain.Order),
		reservations: make(map[string]domain.InventoryReservation),
		profiles:     make(map[string]domain.Profile),
		outbox:       make(map[string]outboxRecord),
	}
}

// memTx — открытая транзакция с журналом компенсаций.
type memTx struct {
	s       *Store
	journal []func()
}

func (t *memTx) record(undo func()) {
	t.journal = append(t.journal, undo)
}

func (t *memTx) rollback() {
	for i := len(t.journal) - 1; i >= 0; i-- {
		t.journal[i]()
	}
	t.journal = nil
}

// put записывает значение и запоминает, как вернуть прежнее.
func put[K comparable, V any](tx *memTx, m map[K]V, key K, value V) {
	prev, existed := m[key]
	m[key] = value
	tx.record(func() {
		if existed {
			m[key] = prev
			return
		}
		delete(m, key)
	})
}

func remove[K comparable, V any](tx *memTx, m map[K]V, key K) {
	prev, existed := m[key]
	if !existed {
		return
	}
	delete(m, key)
	tx.record(func() { m[key] = prev })
}

// executor выполняет функцию над хранилищем: либо внутри уже открытой транзакции,
// либо в отдельной короткой транзакции.
type executor func(fn func(tx *memTx) error) error

func (s *Store) atomically(fn func(tx *memTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

func inTx(tx *memTx) executor {
	return func(fn func(tx *memTx) error) error {
		return fn(tx)
	}
}

// WithinTx выполняет fn атомарно. Репозитории из tx нельзя использовать после возврата.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.atomically(func(tx *memTx) error {
		return fn(ctx, txRepositories{exec: inTx(tx)})
	})
}

// Products возвращает репозиторий каталога вне транзакции.
func (s *Store) Products() domain.ProductRepository { return &productRepository{exec: s.atomically} }

// Inventory возвращает репозиторий остатков вне транзакции.
func (s *Store) Inventory() domain.InventoryRepository {
	return &inventoryRepository{exec: s.atomically}
}

// Sales возвращает репозиторий продаж вне транзакции.
func (s *Store) Sales() domain.SaleRepository { return &saleRepository{exec: s.atomically} }

// Orders возвращает репозиторий заказов вне транзакции.
func (s *Store) Orders() domain.OrderRepository { return &orderRepository{exec: s.atomically} }

// Reservations возвращает репозиторий удержаний вне транзакции.
func (s *Store) Reservations() domain.ReservationRepository {
	return &reservationRepository{exec: s.atomically}
}

// Outbox возвращает outbox-репозиторий вне транзакции.
func (s *Store) Outbox() domain.OutboxRepository { return &outboxRepository{exec: s.atomically} }

// Profiles возвращает репозиторий профилей.
func (s *Store) Profiles() domain.ProfileRepository { return &profileRepository{exec: s.atomically} }

type txRepositories struct {
	exec executor
}

func (t txRepositories) Products() domain.ProductRepository { return &productRepository{exec: t.exec} }
func (t txRepositories) Inventory() domain.InventoryRepository {
	return &inventoryRepository{exec: t.exec}
}
func (t txRepositories) Sales() domain.SaleRepository   { return &saleRepository{exec: t.exec} }
func (t txRepositories) Orders() domain.OrderRepository { return &orderRepository{exec: t.exec} }
func (t txRepositories) Reservations() domain.ReservationRepository {
	return &reservationRepository{exec: t.exec}
}
func (t txRepositories) Outbox() domain.OutboxRepository { return &outboxRepository{exec: t.exec} }

var (
	_ domain.TxManager = (*Store)(nil)
	_ domain.Tx        = txRepositories{}
)
