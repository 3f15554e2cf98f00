package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/storage/memory"
)

func TestIdempotencyRepository_CheckoutReplay(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing(ctx, " org-1:caja-1-0001 ", "hash-cart", ttl)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)
	require.Equal(t, "org-1:caja-1-0001", created.Key)
	require.True(t, created.TTLAt.Equal(ttl))

	_, err = repo.CreateProcessing(ctx, "org-1:caja-1-0001", "hash-cart", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)

	body := []byte(`{"sale":{"id":"sale-1"}}`)
	require.NoError(t, repo.MarkDone(ctx, "org-1:caja-1-0001", body, int(codes.OK)))
	body[0] = 'x'

	replay, err := repo.CreateProcessing(ctx, "org-1:caja-1-0001", "hash-cart", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.True(t, replay.Settled())
	require.Equal(t, `{"sale":{"id":"sale-1"}}`, string(replay.ResponseBody), "stored body must not alias the caller buffer")

	_, err = repo.CreateProcessing(ctx, "org-1:caja-1-0001", "hash-other-cart", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestIdempotencyRepository_FailedPlaceOrder(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing(ctx, "org-1:web-42", "hash", time.Time{})
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, "org-1:web-42", []byte(`{"code":9}`), int(codes.FailedPrecondition)))

	got, err := repo.Get(ctx, "org-1:web-42")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, got.Status)
	require.Equal(t, int(codes.FailedPrecondition), got.ResultCode)
	require.WithinDuration(t, time.Now().UTC().Add(domain.DefaultIdempotencyTTL), got.TTLAt, time.Minute)

	require.ErrorIs(t, repo.MarkDone(ctx, "org-1:missing", nil, 0), domain.ErrIdempotencyKeyNotFound)
	require.ErrorIs(t, repo.MarkFailed(ctx, " ", nil, 0), domain.ErrIdempotencyKeyRequired)
	_, err = repo.Get(ctx, "")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
}

func TestIdempotencyRepository_Validation(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing(ctx, "", "hash", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing(ctx, "key", "  ", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
}

func TestIdempotencyRepository_DeleteExpiredWithLimit(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for _, key := range []string{"org-1:a", "org-1:b", "org-1:c"} {
		_, err := repo.CreateProcessing(ctx, key, "hash", now.Add(-time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "org-1:live", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = repo.DeleteExpired(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "org-1:live")
	require.NoError(t, err)
}

func TestIdempotencyRepository_ExpiredKeyCanBeReused(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing(ctx, "org-1:reuse", "hash-old", time.Now().UTC().Add(-time.Second))
	require.NoError(t, err)

	created, err := repo.CreateProcessing(ctx, "org-1:reuse", "hash-new", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "hash-new", created.RequestHash)
}
