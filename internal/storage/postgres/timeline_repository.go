package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

type timelineRepository struct {
	q querier
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := event.Validate(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, from_status, to_status, reason, actor_id, occurred)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, event.OrderID, string(event.From), string(event.To), event.Reason, event.ActorID, event.Occurred); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}

	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT order_id, from_status, to_status, reason, actor_id, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var (
			event    domain.TimelineEvent
			from, to string
		)
		if err := rows.Scan(&event.OrderID, &from, &to, &event.Reason, &event.ActorID, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		event.From = domain.OrderStatus(from)
		event.To = domain.OrderStatus(to)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}

	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
