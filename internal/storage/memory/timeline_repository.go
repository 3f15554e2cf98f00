package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// orderTimeline держит переходы статусов по заказам, отсортированные по времени.
type orderTimeline struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &orderTimeline{byOrder: make(map[string][]domain.TimelineEvent)}
}

func (r *orderTimeline) Append(_ context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.byOrder[event.OrderID]
	// События с одинаковым временем остаются в порядке записи.
	at := len(history)
	for at > 0 && history[at-1].Occurred.After(event.Occurred) {
		at--
	}
	r.byOrder[event.OrderID] = slices.Insert(history, at, event)
	return nil
}

func (r *orderTimeline) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if history := r.byOrder[orderID]; len(history) > 0 {
		return slices.Clone(history), nil
	}
	return []domain.TimelineEvent{}, nil
}

var _ domain.TimelineRepository = (*orderTimeline)(nil)
