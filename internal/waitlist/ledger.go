package waitlist

import (
	"context"
	"fmt"
	"time"

	"ms-waitlist/internal/models"
)

// Ledger computes how many spots an event has free right now. Free capacity
// is total capacity minus committed tickets minus live offers; an offer whose
// deadline has passed is already treated as free even if no expiry has
// recorded it yet.
//
// The snapshot is recomputed on every call. It is advisory only: callers must
// guard the subsequent write with a CAS rather than trust the snapshot to
// still hold by the time the write lands.
type Ledger struct {
	Store   OfferCounter
	Tickets CommittedCounter
	Events  EventRegistry
	Clock   Clock
}

type OfferCounter interface {
	CountLiveOffers(ctx context.Context, eventID string, now time.Time) (int, error)
}

type CommittedCounter interface {
	CountCommitted(ctx context.Context, eventID string) (int, error)
}

// ComputeAvailability returns the capacity snapshot for an event.
func (l *Ledger) ComputeAvailability(ctx context.Context, eventID string) (*models.Availability, error) {
	event, err := l.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	purchased, err := l.Tickets.CountCommitted(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to count committed tickets: %w", err)
	}

	liveOffers, err := l.Store.CountLiveOffers(ctx, eventID, l.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to count live offers: %w", err)
	}

	free := event.TotalTickets - purchased - liveOffers
	return &models.Availability{
		TotalTickets:   event.TotalTickets,
		PurchasedCount: purchased,
		ActiveOffers:   liveOffers,
		FreeSpots:      free,
		IsSoldOut:      free <= 0,
	}, nil
}
