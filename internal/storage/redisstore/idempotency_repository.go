// Package redisstore хранит ключи идемпотентности в Redis.
//
// Запись лежит под ключом idem:<key> в виде JSON, срок жизни задаётся TTL ключа,
// поэтому просроченные записи Redis удаляет сам.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

const keyPrefix = "idem:"

// NewClient создаёт клиента Redis и проверяет соединение.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

type storedRecord struct {
	RequestHash  string                   `json:"request_hash"`
	ResponseBody []byte                   `json:"response_body,omitempty"`
	ResultCode   int                      `json:"result_code,omitempty"`
	Status       domain.IdempotencyStatus `json:"status"`
	TTLAt        time.Time                `json:"ttl_at"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// IdempotencyRepository — реализация domain.IdempotencyRepository поверх Redis.
type IdempotencyRepository struct {
	rdb redis.Cmdable
	now func() time.Time
}

// NewIdempotencyRepository создаёт репозиторий.
func NewIdempotencyRepository(rdb redis.Cmdable) *IdempotencyRepository {
	return &IdempotencyRepository{
		rdb: rdb,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func redisKey(key string) string {
	return keyPrefix + key
}

func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	now := r.now()
	record, err := domain.NewIdempotencyRecord(strings.TrimSpace(key), strings.TrimSpace(requestHash), ttlAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	key = record.Key
	ttl := record.TTLAt.Sub(now)
	if ttl <= 0 {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency ttl %s is in the past", record.TTLAt.Format(time.RFC3339))
	}

	stored := storedRecord{
		RequestHash: record.RequestHash,
		Status:      record.Status,
		TTLAt:       record.TTLAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("marshal idempotency record: %w", err)
	}

	created, err := r.rdb.SetNX(ctx, redisKey(key), data, ttl).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency key: %w", err)
	}
	if created {
		return toDomain(key, stored), nil
	}

	existing, err := r.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		return domain.IdempotencyRecord{}, err
	}
	return existing, existing.Conflict(record.RequestHash)
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	stored, err := r.load(ctx, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	return toDomain(key, stored), nil
}

func (r *IdempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, code int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, code)
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, code int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, code)
}

// DeleteExpired ничего не делает: истёкшие ключи удаляет сам Redis.
func (r *IdempotencyRepository) DeleteExpired(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}

func (r *IdempotencyRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, code int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	stored, err := r.load(ctx, key)
	if err != nil {
		return err
	}
	stored.Status = status
	stored.ResponseBody = append([]byte(nil), responseBody...)
	stored.ResultCode = code
	stored.UpdatedAt = r.now()

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	// XX + KEEPTTL: обновляем только существующий ключ и не продлеваем срок жизни.
	err = r.rdb.SetArgs(ctx, redisKey(key), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("update idempotency key: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) load(ctx context.Context, key string) (storedRecord, error) {
	raw, err := r.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return storedRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return storedRecord{}, fmt.Errorf("get idempotency key: %w", err)
	}

	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return storedRecord{}, fmt.Errorf("decode idempotency record: %w", err)
	}
	return stored, nil
}

func toDomain(key string, stored storedRecord) domain.IdempotencyRecord {
	return domain.IdempotencyRecord{
		Key:          key,
		RequestHash:  stored.RequestHash,
		ResponseBody: append([]byte(nil), stored.ResponseBody...),
		ResultCode:   stored.ResultCode,
		Status:       stored.Status,
		TTLAt:        stored.TTLAt,
		CreatedAt:    stored.CreatedAt,
		UpdatedAt:    stored.UpdatedAt,
	}
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
