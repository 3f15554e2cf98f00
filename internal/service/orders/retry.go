package orders

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// RetryConfig конфигурация повторов при конфликте версий заказа.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию: три попытки с экспоненциальной задержкой.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func (c RetryConfig) next(delay time.Duration) time.Duration {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay = time.Duration(float64(delay) * factor)
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// retryOnConflict повторяет fn, пока она завершается конфликтом версий.
// Каждая попытка заново читает заказ, поэтому переход проверяется на свежем статусе.
func (s *Service) retryOnConflict(ctx context.Context, orderID string, fn func() error) error {
	attempts := s.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := s.retry.InitialDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			if attempt > 1 {
				s.logger.WithFields(log.Fields{
					"order_id": orderID,
					"attempt":  attempt,
				}).Info("status update succeeded after retry")
			}
			return nil
		}
		if !domain.IsVersionConflict(err) {
			return err
		}

		if s.metrics != nil {
			s.metrics.RecordOrderConflict()
		}
		if attempt == attempts {
			break
		}
		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt,
			"delay":    delay,
		}).Warn("version conflict detected, retrying")

		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay = s.retry.next(delay)
	}

	s.logger.WithFields(log.Fields{
		"order_id":     orderID,
		"max_attempts": attempts,
	}).Error("status update failed after all retry attempts")
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
