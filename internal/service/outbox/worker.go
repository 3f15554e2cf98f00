// Package outbox доставляет события transactional outbox (продажи, остатки, заказы)
// во внешнюю шину. Сообщение, не опубликованное за maxAttempts попыток, уходит в DLQ
// и помечается failed.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/metrics"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
)

// Option настраивает Worker.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics подключает счётчики доставки и backlog.
func WithMetrics(m *metrics.RetailMetrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithDLQPublisher задаёт publisher для сообщений, которые не удалось доставить.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) {
		w.dlq = publisher
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithBatchSize(batchSize int) Option {
	return func(w *Worker) {
		if batchSize > 0 {
			w.batchSize = batchSize
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации перед DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(w *Worker) {
		if maxAttempts > 0 {
			w.maxAttempts = maxAttempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
// Ноль отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) {
		w.retryBaseDelay = max(delay, 0)
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// Batch — итог одного прохода ProcessOnce.
type Batch struct {
	Sent         int
	DeadLettered int
}

// Worker публикует pending-сообщения outbox в порядке их записи.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlq            domain.OutboxPublisher
	logger         *log.Entry
	metrics        *metrics.RetailMetrics
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         log.WithField("component", "outbox-worker"),
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run опрашивает outbox раз в pollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует одну порцию pending-сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) Batch {
	var batch Batch
	if ctx.Err() != nil {
		return batch
	}
	defer w.refreshBacklog(ctx)

	events, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return batch
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return batch
		}
		fields := log.Fields{
			"outbox_id":    event.ID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		}

		if err := w.deliver(ctx, event); err != nil {
			if ctx.Err() != nil {
				return batch
			}
			w.logger.WithError(err).WithFields(fields).Error("outbox event moved to dead letters")
			w.deadLetter(ctx, event, err)
			if markErr := w.repo.MarkFailed(ctx, event.ID); markErr != nil {
				w.logger.WithError(markErr).WithFields(fields).Warn("failed to mark outbox message as failed")
			}
			batch.DeadLettered++
			continue
		}

		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			w.logger.WithError(err).WithFields(fields).Warn("failed to mark outbox message as sent")
			continue
		}
		batch.Sent++
	}
	return batch
}

// deliver публикует событие, повторяя временные ошибки с удвоением паузы.
// ErrEventUndeliverable не повторяется.
func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		lastErr = w.publisher.Publish(ctx, event)
		if lastErr == nil {
			w.record("sent")
			return nil
		}
		if errors.Is(lastErr, domain.ErrEventUndeliverable) {
			w.record("undeliverable")
			return lastErr
		}
		w.record("retry_error")

		if attempt == w.maxAttempts {
			break
		}
		if delay := w.retryBackoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 || attempt < 1 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	stats, err := w.repo.Stats(context.WithoutCancel(ctx))
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	var oldest time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		oldest = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetOutboxBacklog(stats.PendingCount, oldest)
}

func (w *Worker) record(result string) {
	if w.metrics != nil {
		w.metrics.RecordOutboxPublish(result)
	}
}

// DeadLetter — содержимое сообщения в DLQ. cmd/dlq-replay восстанавливает
// из него исходное событие.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

func (w *Worker) deadLetter(ctx context.Context, event domain.OutboxMessage, publishErr error) {
	if w.dlq == nil {
		return
	}

	letter := DeadLetter{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		PublishError:   publishErr.Error(),
		DLQPublishedAt: w.now(),
	}
	if json.Valid(event.Payload) {
		letter.Payload = json.RawMessage(event.Payload)
	}
	body, err := json.Marshal(letter)
	if err == nil {
		err = w.dlq.Publish(ctx, domain.OutboxMessage{
			ID:            event.ID,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			EventType:     event.EventType,
			Payload:       body,
		})
	}
	if err != nil {
		w.logger.WithError(err).WithField("outbox_id", event.ID).Warn("failed to publish to DLQ")
		w.record("dlq_failed")
		return
	}
	w.record("dead_letter")
}
