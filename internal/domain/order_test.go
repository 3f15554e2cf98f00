package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "order-1",
		OrgID:         "org-1",
		CustomerName:  "Ana Pérez",
		PaymentMethod: domain.PaymentMethodTransfer,
		Status:        domain.OrderStatusPending,
		AmountMinor:   500,
		Items: []domain.OrderItem{
			{
				ID:         "item-1",
				ProductID:  "p-1",
				SKU:        "LH-0001",
				Size:       "M",
				Qty:        5,
				PriceMinor: 100,
				CreatedAt:  now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{name: "no customer", mut: func(o *domain.Order) { o.CustomerName = "" }, want: domain.ErrCustomerRequired},
		{name: "no items", mut: func(o *domain.Order) { o.Items = nil; o.AmountMinor = 0 }, want: domain.ErrItemsRequired},
		{name: "qty invalid", mut: func(o *domain.Order) { o.Items[0].Qty = 0 }, want: domain.ErrItemQtyInvalid},
		{name: "price invalid", mut: func(o *domain.Order) { o.Items[0].PriceMinor = -5 }, want: domain.ErrItemPriceInvalid},
		{name: "amount mismatch", mut: func(o *domain.Order) { o.AmountMinor = 999 }, want: domain.ErrAmountMismatch},
		{name: "payment method", mut: func(o *domain.Order) { o.PaymentMethod = "barter" }, want: domain.ErrPaymentMethodInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			errs := order.ValidateInvariants()
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestOrderStatusTransitionTable(t *testing.T) {
	all := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusReserved,
		domain.OrderStatusConfirmed,
		domain.OrderStatusShipped,
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled,
	}
	allowed := map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderStatusPending:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
		domain.OrderStatusReserved:  {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
		domain.OrderStatusConfirmed: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
		domain.OrderStatusShipped:   {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}

	if !domain.OrderStatusCompleted.IsTerminal() || !domain.OrderStatusCancelled.IsTerminal() {
		t.Fatalf("completed and cancelled must be terminal")
	}
	if domain.OrderStatusShipped.IsTerminal() {
		t.Fatalf("shipped is not terminal")
	}
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	next := domain.AllowedTransitions(domain.OrderStatusPending)
	next[0] = domain.OrderStatusCompleted

	if !domain.OrderStatusPending.CanTransitionTo(domain.OrderStatusConfirmed) {
		t.Fatalf("mutating the returned slice must not change the table")
	}
}

func TestParseOrderStatus(t *testing.T) {
	if _, err := domain.ParseOrderStatus("paid"); !errors.Is(err, domain.ErrInvalidOrderStatus) {
		t.Fatalf("expected ErrInvalidOrderStatus, got %v", err)
	}
	status, err := domain.ParseOrderStatus("shipped")
	if err != nil || status != domain.OrderStatusShipped {
		t.Fatalf("unexpected result: %v %v", status, err)
	}
}

func TestApplyTransitionCancelRecordsActorTimeAndReason(t *testing.T) {
	order := makeOrder()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := order.ApplyTransition(domain.OrderStatusCancelled, "user-7", "cliente no pagó", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s", order.Status)
	}
	if order.ManagedBy != "user-7" || !order.ManagedAt.Equal(now) || !order.CancelledAt.Equal(now) {
		t.Fatalf("actor/time not recorded: %+v", order)
	}
	if order.Notes != "cliente no pagó" {
		t.Fatalf("notes = %q", order.Notes)
	}
}

func TestApplyTransitionRejectsMissingEdge(t *testing.T) {
	order := makeOrder()
	order.Status = domain.OrderStatusCompleted

	err := order.ApplyTransition(domain.OrderStatusShipped, "user-7", "", time.Now())
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if order.Status != domain.OrderStatusCompleted || order.ManagedBy != "" {
		t.Fatalf("order must stay untouched: %+v", order)
	}
}
