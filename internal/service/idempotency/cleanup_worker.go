// Package idempotency удаляет просроченные ключи идемпотентности Checkout и PlaceOrder.
// Хранилища с собственным TTL (Redis) возвращают 0, и воркер просто ничего не делает.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics подключает счётчики очистки.
func WithMetrics(m *metrics.RetailMetrics) CleanupOption {
	return func(w *CleanupWorker) {
		w.metrics = m
	}
}

// WithInterval задаёт паузу между проходами; значения <= 0 игнорируются.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize ограничивает число ключей, удаляемых одним запросом.
func WithBatchSize(batchSize int) CleanupOption {
	return func(w *CleanupWorker) {
		if batchSize > 0 {
			w.batchSize = batchSize
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) CleanupOption {
	return func(w *CleanupWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// CleanupWorker периодически удаляет ключи с истёкшим сроком.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	logger    *log.Entry
	metrics   *metrics.RetailMetrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:      repo,
		logger:    log.WithField("component", "idempotency-cleanup"),
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run чистит ключи сразу и затем раз в interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup is disabled: no repository")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce выполняет один проход очистки и возвращает число удалённых ключей.
func (w *CleanupWorker) RunOnce(ctx context.Context) int {
	deleted, err := w.DeleteExpired(ctx, w.now())
	switch {
	case errors.Is(err, context.Canceled):
		return deleted
	case err != nil:
		w.record("error", deleted)
		w.logger.WithError(err).WithField("deleted", deleted).Warn("idempotency cleanup failed")
		return deleted
	}

	w.record("ok", deleted)
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
	}
	return deleted
}

// DeleteExpired удаляет ключи с ttl <= before порциями по batchSize,
// пока очередная порция не окажется неполной.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := w.repo.DeleteExpired(ctx, before, w.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted < w.batchSize {
			return total, nil
		}
	}
}

func (w *CleanupWorker) record(result string, deleted int) {
	if w.metrics != nil {
		w.metrics.RecordIdempotencyCleanup(result, deleted)
	}
}
