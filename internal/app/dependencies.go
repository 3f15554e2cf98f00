package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/retailpos/internal/health"
	"github.com/vladislavdragonenkov/retailpos/internal/storage/memory"
	"github.com/vladislavdragonenkov/retailpos/internal/storage/postgres"
	"github.com/vladislavdragonenkov/retailpos/internal/storage/redisstore"
)

// retailStore — общее для memory и postgres хранилище: транзакции и репозитории вне транзакций.
type retailStore interface {
	domain.TxManager
	Products() domain.ProductRepository
	Inventory() domain.InventoryRepository
	Sales() domain.SaleRepository
	Orders() domain.OrderRepository
	Reservations() domain.ReservationRepository
	Outbox() domain.OutboxRepository
	Profiles() domain.ProfileRepository
}

type runtimeDependencies struct {
	store           retailStore
	repo            domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	closeFn         func() error
	storageChecker  healthcheck.Checker
	redisChecker    healthcheck.Checker
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// initRuntimeDependencies открывает хранилище по cfg.StorageDriver и, если задан RedisAddr,
// переносит ключи идемпотентности в Redis.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	var deps *runtimeDependencies
	switch driver {
	case StorageDriverMemory:
		store := memory.NewStore()
		deps = &runtimeDependencies{
			store:           store,
			repo:            store.Orders(),
			outboxRepo:      store.Outbox(),
			timelineRepo:    memory.NewTimelineRepository(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
			closeFn:         func() error { return nil },
			storageChecker: healthcheck.NewSimpleChecker("storage", func(context.Context) error {
				return nil
			}),
		}
		logger.Info("storage: memory")
	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, errors.New("postgres storage requires RETAIL_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		deps = &runtimeDependencies{
			store:           store,
			repo:            store.Orders(),
			outboxRepo:      store.Outbox(),
			timelineRepo:    store.Timeline(),
			idempotencyRepo: store.Idempotency(),
			closeFn:         store.Close,
			storageChecker:  healthcheck.NewSimpleChecker("postgres", store.Ping),
		}
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("storage: postgres")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q (use %s|%s)", cfg.StorageDriver, StorageDriverMemory, StorageDriverPostgres)
	}

	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		rdb, err := redisstore.NewClient(ctx, addr)
		if err != nil {
			logger.WithError(err).Warn("redis is unavailable, idempotency keys stay in primary storage")
			return deps, nil
		}
		attachRedis(deps, rdb)
		logger.WithField("addr", addr).Info("idempotency keys are stored in redis")
	}

	return deps, nil
}

func attachRedis(deps *runtimeDependencies, rdb *redis.Client) {
	deps.idempotencyRepo = redisstore.NewIdempotencyRepository(rdb)
	deps.redisChecker = healthcheck.NewOptionalChecker("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	closeStore := deps.closeFn
	deps.closeFn = func() error {
		redisErr := rdb.Close()
		if closeStore == nil {
			return redisErr
		}
		return errors.Join(closeStore(), redisErr)
	}
}
