// Package reservations снимает и подтверждает удержания товара под онлайн-заказы.
//
// Удержания создаются при оформлении заказа с оплатой переводом. Смена статуса заказа их не
// трогает: остаток возвращается либо вручную (ReleaseForOrder), либо периодическим Sweeper.
package reservations

import (
	"context"
	"fmt"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/metrics"
)

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 200
)

// Options задаёт параметры сервиса и Sweeper.
type Options struct {
	Logger    *log.Entry
	Metrics   *metrics.RetailMetrics
	Interval  time.Duration
	BatchSize int
}

// Option настраивает Service или Sweeper.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики резервов.
func WithMetrics(m *metrics.RetailMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithInterval задаёт интервал между проходами Sweeper.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithBatchSize задаёт размер страницы при обходе активных удержаний.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

func buildOptions(component string, options []Option) Options {
	opts := Options{
		Interval:  defaultSweepInterval,
		BatchSize: defaultSweepBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", component)
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}
	return opts
}

// Service — ручное снятие удержаний.
type Service struct {
	tx      domain.TxManager
	logger  *log.Entry
	metrics *metrics.RetailMetrics
}

// NewService создаёт сервис ручного снятия удержаний.
func NewService(tx domain.TxManager, options ...Option) *Service {
	opts := buildOptions("reservations", options)
	return &Service{
		tx:      tx,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// ReleaseForOrder снимает все активные удержания заказа и возвращает товар в остаток.
// Возвращает число снятых удержаний; повторный вызов ничего не меняет.
func (s *Service) ReleaseForOrder(ctx context.Context, actor *domain.Actor, orderID string) (int, error) {
	if err := actor.Authorize(domain.PermissionManageReservations); err != nil {
		return 0, err
	}
	if orderID == "" {
		return 0, domain.ErrOrderIDRequired
	}

	var released int
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		released = 0
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.OrgID != actor.OrgID {
			return domain.ErrOrderNotFound
		}

		holds, err := tx.Reservations().ListByOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("list reservations: %w", err)
		}
		sortByStockKey(holds)
		for _, res := range holds {
			if !res.Status.IsActive() {
				continue
			}
			if err := release(ctx, tx, res); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		for i := 0; i < released; i++ {
			s.metrics.RecordReservation(string(domain.ReservationStatusReleased))
		}
	}
	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"released": released,
		"actor_id": actor.UserID,
	}).Info("reservations released")
	return released, nil
}

// sortByStockKey упорядочивает удержания так же, как Allocator берёт блокировки.
func sortByStockKey(holds []domain.InventoryReservation) {
	slices.SortStableFunc(holds, func(a, b domain.InventoryReservation) int {
		return a.Key().Compare(b.Key())
	})
}

// release возвращает удержанное количество в складскую запись и помечает удержание снятым.
func release(ctx context.Context, tx domain.Tx, res domain.InventoryReservation) error {
	rec, err := tx.Inventory().GetForUpdate(ctx, res.Key())
	if err != nil {
		return fmt.Errorf("lock stock for reservation %s: %w", res.ID, err)
	}
	if err := tx.Inventory().SetQuantity(ctx, rec.ID, rec.Quantity+res.Qty); err != nil {
		return fmt.Errorf("return stock for reservation %s: %w", res.ID, err)
	}
	if err := tx.Reservations().UpdateStatus(ctx, res.ID, domain.ReservationStatusReleased); err != nil {
		return fmt.Errorf("release reservation %s: %w", res.ID, err)
	}

	msg, err := domain.NewOutboxMessage(domain.AggregateOrder, res.OrderID, domain.EventReservationReleased, domain.ReservationReleasedPayload{
		ReservationID: res.ID,
		OrderID:       res.OrderID,
		LocationID:    res.LocationID,
		Qty:           res.Qty,
	})
	if err != nil {
		return err
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue reservation released: %w", err)
	}
	return nil
}
