package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/retailpos/internal/auth"
	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/storage/memory"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{domain.ErrUnauthenticated, codes.Unauthenticated},
		{fmt.Errorf("%w: role staff", domain.ErrForbidden), codes.PermissionDenied},
		{&domain.InsufficientStockError{SKU: "LH-1", Requested: 2}, codes.FailedPrecondition},
		{fmt.Errorf("%w: pending -> completed", domain.ErrInvalidTransition), codes.FailedPrecondition},
		{domain.ErrProductInactive, codes.FailedPrecondition},
		{domain.ErrDuplicateSKU, codes.AlreadyExists},
		{domain.ErrOrderVersionConflict, codes.Aborted},
		{domain.ErrSaleNotFound, codes.NotFound},
		{fmt.Errorf("line 0: %w", domain.ErrItemQtyInvalid), codes.InvalidArgument},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tc := range cases {
		if got := codeOf(tc.err); got != tc.want {
			t.Fatalf("codeOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}

	already := status.Error(codes.ResourceExhausted, "slow down")
	if got := toStatus(already); status.Code(got) != codes.ResourceExhausted {
		t.Fatalf("status error must pass through, got %v", got)
	}
	if toStatus(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestFailKeepsErrorMessage(t *testing.T) {
	s := NewRetailService(Services{}, nil)

	err := s.fail("Checkout", errors.New("dial tcp 10.0.0.3:5432: connection refused"))
	if status.Code(err) != codes.Internal || status.Convert(err).Message() != "dial tcp 10.0.0.3:5432: connection refused" {
		t.Fatalf("unexpected internal error: %v", err)
	}

	err = s.fail("Checkout", domain.ErrCartEmpty)
	if status.Code(err) != codes.InvalidArgument || status.Convert(err).Message() != domain.ErrCartEmpty.Error() {
		t.Fatalf("validation error must keep its message: %v", err)
	}
}

func TestDecodeIdempotencyFailure(t *testing.T) {
	payload, _ := json.Marshal(idempotencyErrorPayload{Code: int32(codes.FailedPrecondition), Message: "insufficient stock"})
	err := decodeIdempotencyFailure(domain.IdempotencyRecord{ResponseBody: payload})
	if status.Code(err) != codes.FailedPrecondition || status.Convert(err).Message() != "insufficient stock" {
		t.Fatalf("unexpected decoded failure: %v", err)
	}

	err = decodeIdempotencyFailure(domain.IdempotencyRecord{ResultCode: int(codes.NotFound)})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected fallback to stored status, got %v", err)
	}

	err = decodeIdempotencyFailure(domain.IdempotencyRecord{ResponseBody: []byte("{broken"), ResultCode: 999})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected internal for unreadable record, got %v", err)
	}

	if _, ok := grpcCodeFromInt(-1); ok {
		t.Fatalf("negative code must be rejected")
	}
}

func TestIdempotencyRequestHash(t *testing.T) {
	req := &CheckoutRequest{
		Cart:          domain.Cart{Lines: []domain.CartLine{{ProductID: "p-1", Qty: 1}}},
		PaymentMethod: domain.PaymentMethodCash,
	}
	first, err := buildIdempotencyRequestHash("/retail.v1.RetailService/Checkout", req)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, _ := buildIdempotencyRequestHash("/retail.v1.RetailService/Checkout", req)
	if first != second {
		t.Fatalf("hash must be stable")
	}
	other, _ := buildIdempotencyRequestHash("/retail.v1.RetailService/PlaceOrder", req)
	if other == first {
		t.Fatalf("method must be part of the hash")
	}
	if _, err := buildIdempotencyRequestHash("m", nil); err == nil {
		t.Fatalf("expected error for nil request")
	}
}

func TestWithIdempotencyStates(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	s := NewRetailService(Services{Idempotency: repo}, nil)

	actor := &domain.Actor{UserID: "u-1", OrgID: "org-1", Role: domain.RoleStaff, Active: true}
	ctx := auth.WithActor(context.Background(), actor)
	ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(idempotencyKeyHeader, "k-1"))

	calls := 0
	handler := func(context.Context) (*ReleaseReservationsResponse, error) {
		calls++
		return &ReleaseReservationsResponse{OrderID: "o-1", Released: 2}, nil
	}

	// Запрос с тем же ключом, пока первый ещё выполняется.
	hash, _ := buildIdempotencyRequestHash("m", "req")
	if _, err := repo.CreateProcessing(context.Background(), "org-1:k-busy", hash, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("seed processing: %v", err)
	}
	busy := metadata.NewIncomingContext(auth.WithActor(context.Background(), actor), metadata.Pairs(idempotencyKeyHeader, "k-busy"))
	if _, err := withIdempotency(s, busy, "m", "req", handler); status.Code(err) != codes.Aborted {
		t.Fatalf("expected aborted for processing key, got %v", err)
	}

	resp, err := withIdempotency(s, ctx, "m", "req", handler)
	if err != nil || resp.Released != 2 {
		t.Fatalf("first call: %+v %v", resp, err)
	}
	resp, err = withIdempotency(s, ctx, "m", "req", handler)
	if err != nil || resp.Released != 2 || resp.OrderID != "o-1" {
		t.Fatalf("replay: %+v %v", resp, err)
	}
	if calls != 1 {
		t.Fatalf("handler must run once, ran %d times", calls)
	}

	record, err := repo.Get(context.Background(), "org-1:k-1")
	if err != nil || record.Status != domain.IdempotencyStatusDone {
		t.Fatalf("key must be scoped by organization: %+v %v", record, err)
	}

	noKey := auth.WithActor(context.Background(), actor)
	if _, err := withIdempotency(s, noKey, "m", "req", handler); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument without key, got %v", err)
	}
}

func TestJSONCodec(t *testing.T) {
	codec := jsonCodec{}
	if codec.Name() != CodecName {
		t.Fatalf("unexpected codec name %q", codec.Name())
	}

	var req GetOrderRequest
	if err := codec.Unmarshal(nil, &req); err != nil {
		t.Fatalf("empty payload must decode to zero value: %v", err)
	}
	if err := codec.Unmarshal([]byte(`{"order_id":`), &req); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := codec.Marshal(make(chan int)); err == nil {
		t.Fatalf("expected encode error")
	}
}
