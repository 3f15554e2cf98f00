package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/metrics"
)

// SweepResult — итог одного прохода Sweeper.
type SweepResult struct {
	Released  int
	Completed int
	Confirmed int
}

// Sweeper периодически сверяет активные удержания со статусами заказов.
type Sweeper struct {
	tx        domain.TxManager
	logger    *log.Entry
	metrics   *metrics.RetailMetrics
	interval  time.Duration
	batchSize int
}

// NewSweeper создаёт воркер сверки удержаний.
func NewSweeper(tx domain.TxManager, options ...Option) *Sweeper {
	opts := buildOptions("reservation-sweeper", options)
	return &Sweeper{
		tx:        tx,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
	}
}

// Run выполняет проходы до отмены ctx.
func (w *Sweeper) Run(ctx context.Context) {
	if w.tx == nil {
		w.logger.Warn("reservation sweeper is disabled: storage is nil")
		return
	}

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	result, err := w.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.WithError(err).Warn("reservation sweep failed")
		return
	}
	if result.Released+result.Completed+result.Confirmed > 0 {
		w.logger.WithFields(log.Fields{
			"released":  result.Released,
			"completed": result.Completed,
			"confirmed": result.Confirmed,
		}).Info("reservation sweep completed")
	}
}

// RunOnce выполняет один проход по всем активным удержаниям, страницами по batchSize:
// отменённые заказы возвращают товар, выполненные закрывают удержание, подтверждённые
// и отгруженные подтверждают его. Каждый заказ обрабатывается в отдельной транзакции.
func (w *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var (
		result SweepResult
		cursor domain.ReservationCursor
	)
	seen := make(map[string]bool)

	for {
		page, err := w.nextPage(ctx, cursor)
		if err != nil {
			return result, err
		}

		for _, res := range page {
			if seen[res.OrderID] {
				continue
			}
			seen[res.OrderID] = true

			if err := ctx.Err(); err != nil {
				return result, err
			}
			step, err := w.reconcileOrder(ctx, res.OrderID)
			if err != nil {
				w.logger.WithError(err).WithField("order_id", res.OrderID).Warn("reservation reconcile failed")
				continue
			}
			result.Released += step.Released
			result.Completed += step.Completed
			result.Confirmed += step.Confirmed
		}

		if len(page) < w.batchSize {
			break
		}
		cursor = domain.CursorAt(page[len(page)-1])
	}

	if w.metrics != nil {
		w.record(domain.ReservationStatusReleased, result.Released)
		w.record(domain.ReservationStatusCompleted, result.Completed)
		w.record(domain.ReservationStatusConfirmed, result.Confirmed)
	}
	return result, nil
}

func (w *Sweeper) nextPage(ctx context.Context, after domain.ReservationCursor) ([]domain.InventoryReservation, error) {
	var page []domain.InventoryReservation
	err := w.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		page, err = tx.Reservations().ListActive(ctx, after, w.batchSize)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list active reservations: %w", err)
	}
	return page, nil
}

func (w *Sweeper) reconcileOrder(ctx context.Context, orderID string) (SweepResult, error) {
	var step SweepResult
	err := w.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		step = SweepResult{}
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		holds, err := tx.Reservations().ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		sortByStockKey(holds)

		for _, res := range holds {
			if !res.Status.IsActive() {
				continue
			}
			switch order.Status {
			case domain.OrderStatusCancelled:
				if err := release(ctx, tx, res); err != nil {
					return err
				}
				step.Released++
			case domain.OrderStatusCompleted:
				if err := tx.Reservations().UpdateStatus(ctx, res.ID, domain.ReservationStatusCompleted); err != nil {
					return err
				}
				step.Completed++
			case domain.OrderStatusConfirmed, domain.OrderStatusShipped:
				if res.Status == domain.ReservationStatusConfirmed {
					continue
				}
				if err := tx.Reservations().UpdateStatus(ctx, res.ID, domain.ReservationStatusConfirmed); err != nil {
					return err
				}
				step.Confirmed++
			}
		}
		return nil
	})
	return step, err
}

func (w *Sweeper) record(status domain.ReservationStatus, n int) {
	for i := 0; i < n; i++ {
		w.metrics.RecordReservation(string(status))
	}
}
