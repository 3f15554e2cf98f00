package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// idempotencyKeys хранит ключи Checkout и PlaceOrder отдельно от Store:
// запись ключа не должна откатываться вместе с бизнес-транзакцией.
type idempotencyKeys struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
	now     func() time.Time
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyKeys{
		records: make(map[string]domain.IdempotencyRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *idempotencyKeys) CreateProcessing(_ context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	now := r.now()
	record, err := domain.NewIdempotencyRecord(strings.TrimSpace(key), strings.TrimSpace(requestHash), ttlAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[record.Key]; ok && !existing.Expired(now) {
		return copyRecord(existing), existing.Conflict(record.RequestHash)
	}
	r.records[record.Key] = record
	return copyRecord(record), nil
}

func (r *idempotencyKeys) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

func (r *idempotencyKeys) MarkDone(_ context.Context, key string, responseBody []byte, code int) error {
	return r.settle(key, domain.IdempotencyStatusDone, responseBody, code)
}

func (r *idempotencyKeys) MarkFailed(_ context.Context, key string, responseBody []byte, code int) error {
	return r.settle(key, domain.IdempotencyStatusFailed, responseBody, code)
}

// DeleteExpired удаляет до limit записей с истёкшим сроком; limit <= 0 снимает ограничение.
func (r *idempotencyKeys) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, record := range r.records {
		if limit > 0 && removed >= limit {
			break
		}
		if record.Expired(before) {
			delete(r.records, key)
			removed++
		}
	}
	return removed, nil
}

func (r *idempotencyKeys) settle(key string, status domain.IdempotencyStatus, responseBody []byte, code int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.ResultCode = code
	record.UpdatedAt = r.now()
	r.records[key] = record
	return nil
}

func copyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.ResponseBody = append([]byte(nil), src.ResponseBody...)
	return dst
}

var _ domain.IdempotencyRepository = (*idempotencyKeys)(nil)
