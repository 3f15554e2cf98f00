package notify

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/messaging/kafka"
)

// KafkaNotifier передаёт запросы на уведомление внешнему сервису доставки через Kafka.
type KafkaNotifier struct {
	producer *kafka.Producer
}

// NewKafkaNotifier создаёт notifier поверх producer.
func NewKafkaNotifier(producer *kafka.Producer) *KafkaNotifier {
	return &KafkaNotifier{producer: producer}
}

// Notify публикует уведомление в topic канала.
func (k *KafkaNotifier) Notify(ctx context.Context, n domain.Notification) error {
	var topic string
	switch n.Channel {
	case domain.NotificationEmail:
		topic = kafka.TopicNotificationsEmail
	case domain.NotificationMessaging:
		topic = kafka.TopicNotificationsMessaging
	default:
		return fmt.Errorf("unsupported notification channel %q", n.Channel)
	}
	return k.producer.PublishEvent(ctx, topic, n.OrderID, n)
}

// LogNotifier только пишет уведомление в лог. Используется без Kafka.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт LogNotifier.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.WithField("component", "log-notifier")
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	l.logger.WithFields(log.Fields{
		"channel":   n.Channel,
		"order_id":  n.OrderID,
		"status":    n.Status,
		"recipient": n.Recipient,
	}).Info(n.Body)
	return nil
}

var (
	_ domain.Notifier = (*KafkaNotifier)(nil)
	_ domain.Notifier = (*LogNotifier)(nil)
)
