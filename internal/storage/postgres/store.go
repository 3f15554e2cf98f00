package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

// querier — общий интерфейс *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithinTx выполняет fn в одной транзакции READ COMMITTED.
// Конкурентные списания сериализуются блокировками строк (SELECT ... FOR UPDATE).
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, txRepositories{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// Products возвращает репозиторий каталога вне транзакции.
func (s *Store) Products() domain.ProductRepository { return &productRepository{q: s.db} }

// Inventory возвращает репозиторий остатков вне транзакции.
func (s *Store) Inventory() domain.InventoryRepository { return &inventoryRepository{q: s.db} }

// Sales возвращает репозиторий продаж вне транзакции.
func (s *Store) Sales() domain.SaleRepository { return &saleRepository{q: s.db} }

// Orders возвращает репозиторий заказов вне транзакции.
func (s *Store) Orders() domain.OrderRepository { return &orderRepository{q: s.db} }

// Reservations возвращает репозиторий удержаний вне транзакции.
func (s *Store) Reservations() domain.ReservationRepository {
	return &reservationRepository{q: s.db}
}

// Outbox возвращает outbox-репозиторий вне транзакции.
func (s *Store) Outbox() domain.OutboxRepository { return &outboxRepository{q: s.db} }

// Profiles возвращает репозиторий профилей.
func (s *Store) Profiles() domain.ProfileRepository { return &profileRepository{q: s.db} }

// Timeline возвращает репозиторий истории заказов.
func (s *Store) Timeline() domain.TimelineRepository { return &timelineRepository{q: s.db} }

// Idempotency возвращает репозиторий idempotency-ключей.
func (s *Store) Idempotency() domain.IdempotencyRepository {
	return &idempotencyRepository{q: s.db}
}

type txRepositories struct {
	q querier
}

func (t txRepositories) Products() domain.ProductRepository     { return &productRepository{q: t.q} }
func (t txRepositories) Inventory() domain.InventoryRepository { return &inventoryRepository{q: t.q} }
func (t txRepositories) Sales() domain.SaleRepository           { return &saleRepository{q: t.q} }
func (t txRepositories) Orders() domain.OrderRepository         { return &orderRepository{q: t.q} }
func (t txRepositories) Reservations() domain.ReservationRepository {
	return &reservationRepository{q: t.q}
}
func (t txRepositories) Outbox() domain.OutboxRepository { return &outboxRepository{q: t.q} }

// atomic выполняет fn в транзакции, если q ещё не является транзакцией.
func atomic(ctx context.Context, q querier, fn func(q querier) error) (err error) {
	db, ok := q.(*sql.DB)
	if !ok {
		return fn(q)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var (
	_ domain.TxManager = (*Store)(nil)
	_ domain.Tx        = txRepositories{}
)
