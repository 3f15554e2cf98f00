package memory

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        int64
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// outboxRepository — in-memory хранилище для transactional outbox.
type outboxRepository struct {
	exec executor
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его идентификатор.
func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	err := r.exec(func(tx *memTx) error {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		prevSeq := tx.s.outboxSeq
		tx.s.outboxSeq++
		tx.record(func() { tx.s.outboxSeq = prevSeq })

		now := time.Now().UTC()
		put(tx, tx.s.outbox, msg.ID, outboxRecord{
			msg:       msg,
			seq:       tx.s.outboxSeq,
			status:    outboxStatusPending,
			createdAt: now,
			updatedAt: now,
		})
		return nil
	})
	return msg, err
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке поступления.
func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var pending []outboxRecord
	err := r.exec(func(tx *memTx) error {
		for _, rec := range tx.s.outbox {
			if rec.status == outboxStatusPending {
				pending = append(pending, rec)
			}
		}
		return nil
	})
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })

	if len(pending) > limit {
		pending = pending[:limit]
	}
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, err
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := r.exec(func(tx *memTx) error {
		for _, rec := range tx.s.outbox {
			if rec.status != outboxStatusPending {
				continue
			}
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = rec.createdAt
			}
		}
		return nil
	})
	return stats, err
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *outboxRepository) mark(id, status string) error {
	return r.exec(func(tx *memTx) error {
		rec, ok := tx.s.outbox[id]
		if !ok {
			return domain.ErrOutboxMessageNotFound
		}
		if rec.status != outboxStatusPending {
			return nil
		}
		rec.status = status
		rec.attemptCnt++
		rec.updatedAt = time.Now().UTC()
		put(tx, tx.s.outbox, id, rec)
		return nil
	})
}

// PendingOutbox возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (s *Store) PendingOutbox() []domain.OutboxMessage {
	msgs, _ := s.Outbox().PullPending(context.Background(), math.MaxInt32)
	return msgs
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
