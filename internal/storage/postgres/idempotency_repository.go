package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

type idempotencyRepository struct {
	q querier
}

// CreateProcessing занимает ключ. Просроченная запись перезаписывается,
// живая возвращается вместе с причиной конфликта.
func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	record, err := domain.NewIdempotencyRecord(strings.TrimSpace(key), strings.TrimSpace(requestHash), ttlAt, time.Now().UTC())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var claimed string
	err = r.q.QueryRowContext(ctx, `
		INSERT INTO idempotency_keys (key, request_hash, response_body, result_code, status, ttl_at, created_at, updated_at)
		VALUES ($1,$2,NULL,0,$3,$4,$5,$5)
		ON CONFLICT (key) DO UPDATE
		SET request_hash = EXCLUDED.request_hash,
		    response_body = NULL,
		    result_code = 0,
		    status = EXCLUDED.status,
		    ttl_at = EXCLUDED.ttl_at,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE idempotency_keys.ttl_at <= EXCLUDED.created_at
		RETURNING key
	`, record.Key, record.RequestHash, string(record.Status), record.TTLAt, record.CreatedAt).Scan(&claimed)
	switch {
	case err == nil:
		return record, nil
	case !errors.Is(err, sql.ErrNoRows):
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}

	existing, err := r.Get(ctx, record.Key)
	if err != nil {
		// Запись успела истечь и удалиться между INSERT и SELECT.
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	return existing, existing.Conflict(record.RequestHash)
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		record    domain.IdempotencyRecord
		statusRaw string
		body      []byte
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT key, request_hash, response_body, result_code, status, ttl_at, created_at, updated_at
		FROM idempotency_keys
		WHERE key = $1
	`, key).Scan(&record.Key, &record.RequestHash, &body, &record.ResultCode, &statusRaw, &record.TTLAt, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	record.Status = domain.IdempotencyStatus(statusRaw)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", statusRaw, key)
	}
	record.ResponseBody = append([]byte(nil), body...)
	return record, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, code int) error {
	return r.settle(ctx, key, domain.IdempotencyStatusDone, responseBody, code)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, code int) error {
	return r.settle(ctx, key, domain.IdempotencyStatusFailed, responseBody, code)
}

// DeleteExpired удаляет самые старые просроченные ключи, не больше limit за вызов.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `DELETE FROM idempotency_keys WHERE ttl_at <= $1`
	args := []any{before}
	if limit > 0 {
		query = `
			DELETE FROM idempotency_keys
			WHERE key IN (
				SELECT key FROM idempotency_keys
				WHERE ttl_at <= $1
				ORDER BY ttl_at
				LIMIT $2
			)`
		args = append(args, limit)
	}

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *idempotencyRepository) settle(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, code int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET response_body = $1, result_code = $2, status = $3, updated_at = $4
		WHERE key = $5
	`, responseBody, code, string(status), time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("settle idempotency key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
