package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerWithSyncProducer(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event OrderEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.OrderID != "order-123" || event.EventType != EventTypeOrderCancelled {
			t.Errorf("unexpected event: %+v", event)
		}
		return nil
	})

	order := domain.Order{ID: "order-123", OrgID: "org-1", Status: domain.OrderStatusCancelled, ManagedBy: "user-7"}
	event := NewOrderEvent(order, domain.OrderStatusPending, "cliente no pagó")

	if err := producer.PublishEvent(context.Background(), TopicLifecycleEvents, order.ID, event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerWithSyncProducer(mockProducer, nil)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(context.Background(), TopicLifecycleEvents, "order-123", map[string]string{"k": "v"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishRawCancelledContext(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerWithSyncProducer(mockProducer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := producer.PublishRaw(ctx, TopicOrderEvents, "k", []byte("{}"), nil); err == nil {
		t.Fatal("expected context error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_NilSafe(t *testing.T) {
	var producer *Producer
	if err := producer.PublishRaw(context.Background(), TopicOrderEvents, "k", nil, nil); err == nil {
		t.Fatal("expected error for nil producer")
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("close nil producer: %v", err)
	}
	if err := producer.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error for nil producer")
	}
}

func TestProducer_PingWithoutClient(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerWithSyncProducer(mockProducer, nil)

	if err := producer.Ping(context.Background()); err != nil {
		t.Fatalf("mock-backed producer must be healthy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := producer.Ping(ctx); err == nil {
		t.Fatal("expected context error")
	}

	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewOrderEvent(t *testing.T) {
	order := domain.Order{
		ID:          "order-123",
		OrgID:       "org-1",
		Status:      domain.OrderStatusConfirmed,
		ManagedBy:   "user-1",
		AmountMinor: 3000,
		Items:       []domain.OrderItem{{ID: "i-1"}},
	}

	event := NewOrderEvent(order, domain.OrderStatusReserved, "")

	if event.EventType != EventTypeOrderConfirmed {
		t.Errorf("expected event type %s, got %s", EventTypeOrderConfirmed, event.EventType)
	}
	if event.PreviousStatus != "reserved" || event.ActorID != "user-1" {
		t.Errorf("unexpected event: %+v", event)
	}
	if event.Metadata["amount_minor"] != int64(3000) {
		t.Error("metadata not set correctly")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}

func TestLifecycleEventType(t *testing.T) {
	cases := map[domain.OrderStatus]EventType{
		domain.OrderStatusPending:   EventTypeOrderPlaced,
		domain.OrderStatusReserved:  EventTypeOrderPlaced,
		domain.OrderStatusConfirmed: EventTypeOrderConfirmed,
		domain.OrderStatusShipped:   EventTypeOrderShipped,
		domain.OrderStatusCompleted: EventTypeOrderCompleted,
		domain.OrderStatusCancelled: EventTypeOrderCancelled,
	}
	for status, want := range cases {
		got, ok := LifecycleEventType(status)
		if !ok || got != want {
			t.Errorf("%s: expected %s, got %s (%v)", status, want, got, ok)
		}
	}
	if _, ok := LifecycleEventType("unknown"); ok {
		t.Error("expected unknown status to be rejected")
	}
}
