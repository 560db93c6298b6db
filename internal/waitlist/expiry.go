package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-waitlist/internal/kafka"
	"ms-waitlist/internal/logger"
	"ms-waitlist/internal/models"
)

// ExpireOne is the precise per-offer expiry path, fired by the timer
// scheduled at offer creation. The CAS precondition makes it idempotent: if
// the entry was purchased, released or already swept, the transition loses
// and the call is a no-op.
func (s *Service) ExpireOne(ctx context.Context, entryID, eventID string) error {
	entry, err := s.DB.GetEntry(ctx, entryID)
	if errors.Is(err, ErrOfferNotFound) {
		// Event cancellation cleanup removed the entry under the timer.
		return nil
	}
	if err != nil {
		return err
	}

	err = s.DB.Transition(ctx, entryID, models.StatusOffered, models.StatusExpired, nil)
	if errors.Is(err, ErrStaleTransition) {
		return nil
	}
	if err != nil {
		return err
	}

	entry.Status = models.StatusExpired
	entry.OfferExpiresAt = nil
	s.publishEntry(kafka.TopicOfferExpired, entry)
	s.logQueue("EXPIRE", entryID, fmt.Sprintf("offer timed out on event %s", eventID))

	return s.Admit(ctx, eventID)
}

// SweepOnce reclaims every offer whose deadline passed without the timer
// having fired, across all events, then backfills each affected event once.
// This sweep is the correctness mechanism for "never oversell": timers are a
// latency optimization and may be lost on restart, but the sweep eventually
// runs. Returns the number of entries it expired.
func (s *Service) SweepOnce(ctx context.Context) (int, error) {
	now := s.Clock.Now()

	stale, err := s.DB.ListExpiredOffers(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	expiredByEvent := make(map[string]int)
	for _, entry := range stale {
		err := s.DB.Transition(ctx, entry.EntryID, models.StatusOffered, models.StatusExpired, nil)
		if errors.Is(err, ErrStaleTransition) {
			// Timer or a concurrent sweep got there first.
			continue
		}
		if err != nil {
			return 0, err
		}

		s.cancelExpiry(entry.EntryID)
		expiredByEvent[entry.EventID]++

		entry.Status = models.StatusExpired
		entry.OfferExpiresAt = nil
		s.publishEntry(kafka.TopicOfferExpired, &entry)
	}

	expired := 0
	for eventID, n := range expiredByEvent {
		expired += n
		if err := s.Admit(ctx, eventID); err != nil {
			return expired, fmt.Errorf("backfill for event %s failed: %w", eventID, err)
		}
	}
	return expired, nil
}

// Sweeper runs the reconciliation sweep on a fixed interval until its context
// is cancelled.
type Sweeper struct {
	Service  *Service
	Interval time.Duration
	Logger   *logger.Logger
}

func NewSweeper(service *Service, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{Service: service, Interval: interval, Logger: log}
}

func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	if w.Logger != nil {
		w.Logger.LogSweep(fmt.Sprintf("reconciliation sweep started, interval %s", w.Interval))
	}

	for {
		select {
		case <-ctx.Done():
			if w.Logger != nil {
				w.Logger.LogSweep("reconciliation sweep stopped")
			}
			return
		case <-ticker.C:
			expired, err := w.Service.SweepOnce(ctx)
			if err != nil {
				if w.Logger != nil {
					w.Logger.Error("SWEEP", fmt.Sprintf("sweep failed: %v", err))
				}
				continue
			}
			if expired > 0 && w.Logger != nil {
				w.Logger.LogSweep(fmt.Sprintf("reclaimed %d expired offers", expired))
			}
		}
	}
}
