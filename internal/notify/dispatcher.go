// Package notify доставляет клиентам уведомления о смене статуса заказа.
// Доставка best effort: ошибки логируются и не влияют на смену статуса.
package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/metrics"
)

const defaultSendTimeout = 3 * time.Second

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithSendTimeout задаёт таймаут одной отправки.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.RetailMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher рассылает уведомление по email и мессенджеру независимо друг от друга.
type Dispatcher struct {
	email     domain.Notifier
	messaging domain.Notifier
	timeout   time.Duration
	logger    *log.Entry
	metrics   *metrics.RetailMetrics
}

// NewDispatcher создаёт Dispatcher. Любой из каналов может быть nil.
func NewDispatcher(email, messaging domain.Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		email:     email,
		messaging: messaging,
		timeout:   defaultSendTimeout,
		logger:    log.WithField("component", "notify"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch отправляет уведомления о текущем статусе заказа и ждёт обе попытки.
func (d *Dispatcher) Dispatch(ctx context.Context, order domain.Order) {
	if d == nil {
		return
	}

	subject, body := BuildMessage(order)

	var wg sync.WaitGroup
	send := func(notifier domain.Notifier, channel domain.NotificationChannel, recipient string) {
		defer wg.Done()
		d.send(ctx, notifier, domain.Notification{
			Channel:   channel,
			OrderID:   order.ID,
			Status:    order.Status,
			Recipient: recipient,
			Subject:   subject,
			Body:      body,
		})
	}

	if email := strings.TrimSpace(order.CustomerEmail); email != "" && d.email != nil {
		wg.Add(1)
		go send(d.email, domain.NotificationEmail, email)
	}
	if phone := strings.TrimSpace(order.CustomerPhone); phone != "" && d.messaging != nil {
		wg.Add(1)
		go send(d.messaging, domain.NotificationMessaging, phone)
	}
	wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, notifier domain.Notifier, n domain.Notification) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := notifier.Notify(ctx, n)
	result := "sent"
	if err != nil {
		result = "failed"
		d.logger.WithError(err).WithFields(log.Fields{
			"order_id": n.OrderID,
			"channel":  n.Channel,
		}).Warn("customer notification failed")
	}
	if d.metrics != nil {
		d.metrics.RecordNotification(string(n.Channel), result)
	}
}
