package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

const (
	outboxInsertSQL = `
		INSERT INTO outbox_messages (id, aggregate_type, aggregate_id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $6)`

	// Порядок совпадает с индексом idx_outbox_messages_pending.
	outboxPendingSQL = `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox_messages
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	outboxBacklogSQL = `SELECT COUNT(*), MIN(created_at) FROM outbox_messages WHERE status = 'pending'`

	// Повторная отметка уже обработанного сообщения ничего не меняет.
	outboxSettleSQL = `
		UPDATE outbox_messages
		SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
		WHERE id = $1 AND status = 'pending'`

	outboxExistsSQL = `SELECT EXISTS (SELECT 1 FROM outbox_messages WHERE id = $1)`
)

// outboxRepository пишет события в той же транзакции, что и продажа или заказ.
type outboxRepository struct {
	q querier
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, err := r.q.ExecContext(ctx, outboxInsertSQL,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, time.Now().UTC(),
	); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue %s for %s %s: %w", msg.EventType, msg.AggregateType, msg.AggregateID, err)
	}
	return msg, nil
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, outboxPendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		batch = append(batch, m)
	}
	return batch, rows.Err()
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.q.QueryRowContext(ctx, outboxBacklogSQL).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox backlog: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.settle(ctx, id, outboxStatusSent)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.settle(ctx, id, outboxStatusFailed)
}

func (r *outboxRepository) settle(ctx context.Context, id, status string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, outboxSettleSQL, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox %s as %s: %w", id, status, err)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, outboxExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("lookup outbox %s: %w", id, err)
	}
	if !exists {
		return domain.ErrOutboxMessageNotFound
	}
	return nil
}

const (
	outboxStatusSent   = "sent"
	outboxStatusFailed = "failed"
)

var _ domain.OutboxRepository = (*outboxRepository)(nil)
