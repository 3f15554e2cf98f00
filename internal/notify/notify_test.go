package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/retailpos/internal/metrics"
)

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []domain.Notification
	err   error
	block bool
}

func (r *recordingNotifier) Notify(ctx context.Context, n domain.Notification) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func cancelledOrder() domain.Order {
	return domain.Order{
		ID:            "order-1",
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		CustomerPhone: "+5491100000000",
		Status:        domain.OrderStatusCancelled,
		Notes:         "cliente no pagó",
		AmountMinor:   3000,
		Items:         []domain.OrderItem{{SKU: "LH-0001", Size: "M", Qty: 2}},
	}
}

func TestBuildMessage(t *testing.T) {
	subject, body := BuildMessage(cancelledOrder())

	if subject != "Pedido order-1: cancelled" {
		t.Fatalf("unexpected subject: %q", subject)
	}
	for _, want := range []string{"Hola Ana", "cancelado", "Motivo: cliente no pagó", "LH-0001 x2 (M)", "Total: $30,00"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body %q does not contain %q", body, want)
		}
	}
}

func TestDispatcher_SendsBothChannels(t *testing.T) {
	email := &recordingNotifier{}
	messaging := &recordingNotifier{}
	m := metrics.NewRetailMetricsWithRegisterer(prometheus.NewRegistry())

	NewDispatcher(email, messaging, WithMetrics(m)).Dispatch(context.Background(), cancelledOrder())

	if email.count() != 1 || messaging.count() != 1 {
		t.Fatalf("expected one notification per channel, got email=%d messaging=%d", email.count(), messaging.count())
	}
	if email.sent[0].Recipient != "ana@example.com" || messaging.sent[0].Recipient != "+5491100000000" {
		t.Fatalf("unexpected recipients: %+v %+v", email.sent[0], messaging.sent[0])
	}
}

func TestDispatcher_FailureOfOneChannelDoesNotBlockOther(t *testing.T) {
	email := &recordingNotifier{err: errors.New("smtp down")}
	messaging := &recordingNotifier{}

	NewDispatcher(email, messaging).Dispatch(context.Background(), cancelledOrder())

	if messaging.count() != 1 {
		t.Fatalf("expected messaging notification despite email failure, got %d", messaging.count())
	}
}

func TestDispatcher_SkipsMissingContacts(t *testing.T) {
	email := &recordingNotifier{}
	messaging := &recordingNotifier{}

	order := cancelledOrder()
	order.CustomerPhone = ""

	NewDispatcher(email, messaging).Dispatch(context.Background(), order)

	if email.count() != 1 || messaging.count() != 0 {
		t.Fatalf("expected only email, got email=%d messaging=%d", email.count(), messaging.count())
	}
}

func TestDispatcher_SendTimeout(t *testing.T) {
	email := &recordingNotifier{block: true}

	done := make(chan struct{})
	go func() {
		NewDispatcher(email, nil, WithSendTimeout(20*time.Millisecond)).Dispatch(context.Background(), cancelledOrder())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not respect send timeout")
	}
}

func TestDispatcher_NilSafe(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(context.Background(), cancelledOrder())
}

func TestKafkaNotifier_PublishesToChannelTopic(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != kafka.TopicNotificationsMessaging {
			t.Errorf("unexpected topic %s", msg.Topic)
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var n domain.Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		if n.OrderID != "order-1" || n.Channel != domain.NotificationMessaging {
			t.Errorf("unexpected notification: %+v", n)
		}
		return nil
	})

	notifier := NewKafkaNotifier(kafka.NewProducerWithSyncProducer(mockProducer, nil))
	err := notifier.Notify(context.Background(), domain.Notification{
		Channel: domain.NotificationMessaging, OrderID: "order-1", Status: domain.OrderStatusShipped, Body: "x",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if err := notifier.Notify(context.Background(), domain.Notification{Channel: "fax"}); err == nil {
		t.Fatal("expected unsupported channel error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLogNotifier(t *testing.T) {
	if err := NewLogNotifier(nil).Notify(context.Background(), domain.Notification{OrderID: "order-1"}); err != nil {
		t.Fatalf("log notifier should not fail: %v", err)
	}
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute, nil)
	cb.now = func() time.Time { return now }

	boom := errors.New("boom")
	_ = cb.Execute("op", func() error { return boom })
	if cb.State() != CircuitClosed {
		t.Fatal("breaker should stay closed after first failure")
	}
	_ = cb.Execute("op", func() error { return boom })
	if cb.State() != CircuitOpen {
		t.Fatal("breaker should open after max failures")
	}

	calls := 0
	if err := cb.Execute("op", func() error { calls++; return nil }); !errors.Is(err, ErrCircuitOpen) || calls != 0 {
		t.Fatalf("expected ErrCircuitOpen without call, got %v (calls=%d)", err, calls)
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Execute("op", func() error { calls++; return nil }); err != nil {
		t.Fatalf("half-open probe should pass: %v", err)
	}
	if cb.State() != CircuitClosed || calls != 1 {
		t.Fatalf("expected closed breaker after successful probe, state=%v calls=%d", cb.State(), calls)
	}
}

func TestBreakerNotifier(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("down")}
	notifier := NewBreakerNotifier(failing, NewCircuitBreaker(1, time.Hour, nil))

	n := domain.Notification{Channel: domain.NotificationEmail, OrderID: "order-1"}
	if err := notifier.Notify(context.Background(), n); err == nil {
		t.Fatal("expected first failure to propagate")
	}
	if err := notifier.Notify(context.Background(), n); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if failing.count() != 1 {
		t.Fatalf("expected delegate to be called once, got %d", failing.count())
	}
}
