package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

const idempotencyKeyHeader = "idempotency-key"

const previousAttemptFailed = "previous request with the same idempotency key failed"

// idempotencyErrorPayload — сохранённая ошибка первого вызова.
type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// withIdempotency выполняет handler не больше одного раза на ключ.
// Повтор с тем же ключом и телом получает прежний ответ или прежнюю ошибку.
func withIdempotency[T any](
	s *RetailService,
	ctx context.Context,
	method string,
	req any,
	handler func(context.Context) (*T, error),
) (*T, error) {
	if s.idempotency == nil {
		return handler(ctx)
	}

	key, err := readIdempotencyKey(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := buildIdempotencyRequestHash(method, req)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("idempotency hash failed")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	logger := s.logger.WithFields(log.Fields{"method": method, "idempotency_key": key})
	existing, err := s.idempotency.CreateProcessing(ctx, key, hash, s.now().Add(domain.DefaultIdempotencyTTL))
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return replayIdempotent[T](existing, logger)
	case err != nil:
		logger.WithError(err).Warn("idempotency record was not created")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	// Результат фиксируется даже если клиент уже отключился.
	settleCtx := context.WithoutCancel(ctx)
	resp, runErr := handler(ctx)
	if runErr != nil {
		code, body := encodeIdempotencyFailure(runErr)
		if err := s.idempotency.MarkFailed(settleCtx, key, body, int(code)); err != nil {
			logger.WithError(err).Warn("idempotency failure was not stored")
		}
		return nil, runErr
	}

	body, err := json.Marshal(resp)
	if err == nil {
		err = s.idempotency.MarkDone(settleCtx, key, body, int(codes.OK))
	}
	if err != nil {
		logger.WithError(err).Warn("idempotency response was not stored")
	}
	return resp, nil
}

func replayIdempotent[T any](record domain.IdempotencyRecord, logger *log.Entry) (*T, error) {
	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	case domain.IdempotencyStatusFailed:
		return nil, decodeIdempotencyFailure(record)
	case domain.IdempotencyStatusDone:
	default:
		return nil, status.Error(codes.Internal, "unknown idempotency record status")
	}

	if len(record.ResponseBody) == 0 {
		return nil, status.Error(codes.Internal, "idempotency cache is empty")
	}
	resp := new(T)
	if err := json.Unmarshal(record.ResponseBody, resp); err != nil {
		logger.WithError(err).Warn("cached idempotency response is corrupted")
		return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
	}
	return resp, nil
}

func encodeIdempotencyFailure(runErr error) (codes.Code, []byte) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}
	body, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code), //nolint:gosec // codes.Code is a bounded enum value.
		Message: st.Message(),
	})
	if err != nil {
		return code, nil
	}
	return code, body
}

// decodeIdempotencyFailure восстанавливает ошибку первого вызова: сначала из тела,
// затем по ResultCode. Неизвестные коды превращаются в Internal.
func decodeIdempotencyFailure(record domain.IdempotencyRecord) error {
	var payload idempotencyErrorPayload
	if len(record.ResponseBody) > 0 && json.Unmarshal(record.ResponseBody, &payload) == nil {
		if code, ok := grpcCodeFromInt(int(payload.Code)); ok {
			if code == codes.OK {
				code = codes.Internal
			}
			msg := payload.Message
			if msg == "" {
				msg = previousAttemptFailed
			}
			return status.Error(code, msg)
		}
	}

	if code, ok := grpcCodeFromInt(record.ResultCode); ok && code != codes.OK {
		return status.Error(code, previousAttemptFailed)
	}
	return status.Error(codes.Internal, previousAttemptFailed)
}

func grpcCodeFromInt(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true //nolint:gosec // bounds checked above.
}

// readIdempotencyKey берёт ключ из metadata и добавляет к нему организацию актёра,
// чтобы одинаковые ключи разных организаций не пересекались.
func readIdempotencyKey(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	var key string
	if values := md.Get(idempotencyKeyHeader); len(values) > 0 {
		key = strings.TrimSpace(values[0])
	}
	if key == "" {
		return "", status.Error(codes.InvalidArgument, "idempotency-key metadata is required")
	}
	if actor := actorFrom(ctx); actor != nil && actor.OrgID != "" {
		key = actor.OrgID + ":" + key
	}
	return key, nil
}

// buildIdempotencyRequestHash — sha256 от "метод:json-тело".
func buildIdempotencyRequestHash(method string, req any) (string, error) {
	if req == nil {
		return "", errors.New("request is nil")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{':'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}
