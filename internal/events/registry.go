package events

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"ms-waitlist/internal/models"
	"ms-waitlist/internal/waitlist"
)

// Registry is the event collaborator the admission core reads capacity from.
// Event CRUD itself is owned elsewhere; the registry only answers the
// questions the waiting list needs.
type Registry struct {
	Bun *bun.DB
}

func NewRegistry(bunDB *bun.DB) *Registry {
	return &Registry{Bun: bunDB}
}

func (r *Registry) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := r.Bun.NewSelect().
		Model(&event).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, waitlist.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetEventCapacity returns the total ticket capacity for an event.
func (r *Registry) GetEventCapacity(ctx context.Context, eventID string) (int, error) {
	event, err := r.GetEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return event.TotalTickets, nil
}

// IsCancelled reports whether the event was cancelled by its organizer.
func (r *Registry) IsCancelled(ctx context.Context, eventID string) (bool, error) {
	event, err := r.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	return event.IsCancelled, nil
}
