package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// ErrCircuitOpen возвращается, пока breaker не пропускает вызовы.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker простая реализация circuit breaker паттерна.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      *log.Entry
}

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.WithField("component", "circuit-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 1
	}

	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        CircuitClosed,
		logger:       logger,
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute выполняет операцию через circuit breaker.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	cb.mu.Lock()
	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.logger.WithField("operation", operation).Info("Circuit breaker half-open")
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()

		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("Circuit breaker opened")
		}
		return err
	}

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.logger.WithField("operation", operation).Info("Circuit breaker closed")
	}
	cb.failures = 0

	return nil
}

// BreakerNotifier защищает канал уведомлений circuit breaker'ом.
type BreakerNotifier struct {
	next    domain.Notifier
	breaker *CircuitBreaker
}

// NewBreakerNotifier оборачивает notifier.
func NewBreakerNotifier(next domain.Notifier, breaker *CircuitBreaker) *BreakerNotifier {
	return &BreakerNotifier{next: next, breaker: breaker}
}

// Notify отправляет уведомление, если breaker закрыт или полуоткрыт.
func (b *BreakerNotifier) Notify(ctx context.Context, n domain.Notification) error {
	return b.breaker.Execute("notify."+string(n.Channel), func() error {
		return b.next.Notify(ctx, n)
	})
}

var _ domain.Notifier = (*BreakerNotifier)(nil)
