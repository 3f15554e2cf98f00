package domain

import "time"

// DefaultIdempotencyTTL — сколько хранится ответ Checkout или PlaceOrder по ключу,
// если вызывающий не задал срок.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStatus — состояние ключа идемпотентности.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

// IdempotencyRecord — сохранённый результат запроса с ключом idempotency-key.
// ResultCode хранит gRPC-код ответа, ResponseBody сериализованный ответ или ошибку.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	ResultCode   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Expired сообщает, истёк ли срок хранения ключа к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !now.Before(r.TTLAt)
}

// Settled сообщает, что по ключу уже есть итоговый ответ.
func (r IdempotencyRecord) Settled() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// Conflict объясняет, почему новый запрос с тем же ключом нельзя начать:
// другой запрос под тем же ключом или повтор уже принятого.
func (r IdempotencyRecord) Conflict(requestHash string) error {
	if r.RequestHash != requestHash {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}

// NewIdempotencyRecord создаёт запись в состоянии processing.
func NewIdempotencyRecord(key, requestHash string, ttlAt, now time.Time) (IdempotencyRecord, error) {
	if key == "" {
		return IdempotencyRecord{}, ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}
	if ttlAt.IsZero() {
		ttlAt = now.Add(DefaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
