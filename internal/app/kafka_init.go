package app

import (
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/messaging/kafka"
)

// initKafkaProducer подключается к брокерам из RETAIL_KAFKA_BROKERS.
// Без брокеров события уходят в лог, и функция возвращает nil, nil.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	addrs := splitBrokers(brokers)
	if len(addrs) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(addrs)
	if err != nil {
		logger.WithError(err).WithField("brokers", addrs).Warn("kafka is unreachable, events will be logged instead")
		return nil, err
	}
	logger.WithField("brokers", addrs).Info("kafka producer ready")
	return producer, nil
}

// splitBrokers разбирает список host:port через запятую без пустых и повторных адресов.
func splitBrokers(raw string) []string {
	var addrs []string
	for _, part := range strings.Split(raw, ",") {
		addr := strings.TrimSpace(part)
		if addr == "" || slices.Contains(addrs, addr) {
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("kafka producer close failed")
		return
	}
	logger.Info("kafka producer closed")
}
