package outbox

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// LogPublisher пишет события в лог. Используется, когда Kafka не настроена,
// чтобы outbox не копил backlog.
type LogPublisher struct {
	logger *log.Entry
}

// NewLogPublisher создаёт LogPublisher.
func NewLogPublisher(logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "outbox-log")
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":      event.ID,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"event_type":     event.EventType,
		"payload_bytes":  len(event.Payload),
	}).Info("outbox event")
	return nil
}

var _ domain.OutboxPublisher = (*LogPublisher)(nil)
