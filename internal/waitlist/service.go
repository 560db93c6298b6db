package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-waitlist/internal/kafka"
	"ms-waitlist/internal/logger"
	"ms-waitlist/internal/models"
)

type StoreLayer interface {
	InsertEntry(ctx context.Context, eventID, userID, status string, offerExpiresAt *time.Time, createdAt time.Time) (*models.WaitingListEntry, error)
	Transition(ctx context.Context, entryID, expected, next string, offerExpiresAt *time.Time) error
	GetEntry(ctx context.Context, entryID string) (*models.WaitingListEntry, error)
	GetLatestEntryForUser(ctx context.Context, eventID, userID string) (*models.WaitingListEntry, error)
	ListByEventAndStatus(ctx context.Context, eventID, status string, limit int) ([]models.WaitingListEntry, error)
	ListExpiredOffers(ctx context.Context, now time.Time) ([]models.WaitingListEntry, error)
	CountLiveOffers(ctx context.Context, eventID string, now time.Time) (int, error)
	CountAhead(ctx context.Context, entry *models.WaitingListEntry) (int, error)
	FinalizePurchase(ctx context.Context, entryID string, ticket *models.Ticket, capacity int) error
	DeleteByEvent(ctx context.Context, eventID string) (int, error)
}

type TicketLedger interface {
	CountCommitted(ctx context.Context, eventID string) (int, error)
	IssueTicket(eventID, userID, paymentRef string, amount float64, purchasedAt time.Time) (*models.Ticket, error)
}

type EventRegistry interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
}

type KafkaPublisher interface {
	Publish(topic string, key string, value []byte) error
}

// RateLimiter gates Join calls per user. Allow reports whether the call may
// proceed and, when it may not, how long until the window resets.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) (bool, time.Duration, error)
}

// Service is the admission engine: it owns the join/admit/release operations
// and converts free capacity into FIFO-ordered, time-boxed offers. It holds
// no entry state of its own; every mutation goes through the store's CAS
// primitive, so concurrent callers converge instead of requiring a lock.
type Service struct {
	DB       StoreLayer
	Tickets  TicketLedger
	Events   EventRegistry
	Ledger   *Ledger
	Limiter  RateLimiter
	Locks    EventLocker
	Kafka    KafkaPublisher
	Sched    Scheduler
	Clock    Clock
	OfferTTL time.Duration
	Logger   *logger.Logger

	// cancel funcs for pending offer timers, keyed by entry ID. Cancelling is
	// best-effort; a timer that fires after its offer resolved loses the CAS
	// and no-ops.
	timers sync.Map
}

func NewService(db StoreLayer, tickets TicketLedger, events EventRegistry, limiter RateLimiter, locks EventLocker, publisher KafkaPublisher, sched Scheduler, clock Clock, offerTTL time.Duration, log *logger.Logger) *Service {
	return &Service{
		DB:      db,
		Tickets: tickets,
		Events:  events,
		Ledger: &Ledger{
			Store:   db,
			Tickets: tickets,
			Events:  events,
			Clock:   clock,
		},
		Limiter:  limiter,
		Locks:    locks,
		Kafka:    publisher,
		Sched:    sched,
		Clock:    clock,
		OfferTTL: offerTTL,
		Logger:   log,
	}
}

// GetAvailability returns the fresh capacity snapshot for an event.
func (s *Service) GetAvailability(ctx context.Context, eventID string) (*models.Availability, error) {
	return s.Ledger.ComputeAvailability(ctx, eventID)
}

// Join puts a user in line for an event. When a spot is free the entry is
// created directly in the offered state with an immediate TTL; otherwise it
// is created waiting and the 1-indexed position is returned.
func (s *Service) Join(ctx context.Context, eventID, userID string) (*models.JoinResult, error) {
	if s.Limiter != nil {
		ok, retryAfter, err := s.Limiter.Allow(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w (retry in %s)", ErrRateLimited, retryAfter.Round(time.Second))
		}
	}

	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.IsCancelled {
		return nil, ErrEventCancelled
	}

	existing, err := s.DB.GetLatestEntryForUser(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsActive() {
		return nil, ErrAlreadyQueued
	}

	// The availability read and the insert it gates run under the event lock:
	// without it, two joins racing for the last free spot both read
	// freeSpots=1 and both land as offered.
	release, err := s.lockEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	avail, err := s.Ledger.ComputeAvailability(ctx, eventID)
	if err != nil {
		release()
		return nil, err
	}

	now := s.Clock.Now()

	var entry *models.WaitingListEntry
	var expiresAt time.Time
	granted := avail.FreeSpots > 0
	if granted {
		expiresAt = now.Add(s.OfferTTL)
		entry, err = s.DB.InsertEntry(ctx, eventID, userID, models.StatusOffered, &expiresAt, now)
	} else {
		entry, err = s.DB.InsertEntry(ctx, eventID, userID, models.StatusWaiting, nil, now)
	}
	release()
	if err != nil {
		if errors.Is(err, ErrDuplicateActiveEntry) {
			return nil, ErrAlreadyQueued
		}
		return nil, err
	}

	if granted {
		s.scheduleExpiry(entry.EntryID, eventID, s.OfferTTL)
		s.publishEntry(kafka.TopicOfferGranted, entry)
		s.logQueue("OFFER", entry.EntryID, fmt.Sprintf("immediate offer for user %s on event %s", userID, eventID))

		return &models.JoinResult{
			EntryID:        entry.EntryID,
			Status:         models.StatusOffered,
			OfferExpiresAt: &expiresAt,
			Message:        "Ticket offered - complete your purchase before the offer expires",
		}, nil
	}

	ahead, err := s.DB.CountAhead(ctx, entry)
	if err != nil {
		return nil, err
	}

	s.logQueue("JOIN", entry.EntryID, fmt.Sprintf("user %s waiting at position %d for event %s", userID, ahead+1, eventID))

	return &models.JoinResult{
		EntryID:  entry.EntryID,
		Status:   models.StatusWaiting,
		Position: ahead + 1,
		Message:  "Added to waiting list - you'll be offered a ticket when a spot frees up",
	}, nil
}

// GetPosition reports where a user stands for an event, or nil when the user
// never joined. Terminal statuses are returned without a position so the UI
// can distinguish "offer expired" from "still waiting" and "sold out".
func (s *Service) GetPosition(ctx context.Context, eventID, userID string) (*models.QueuePosition, error) {
	entry, err := s.DB.GetLatestEntryForUser(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	pos := &models.QueuePosition{
		EntryID:        entry.EntryID,
		Status:         entry.Status,
		OfferExpiresAt: entry.OfferExpiresAt,
	}

	if entry.IsActive() {
		ahead, err := s.DB.CountAhead(ctx, entry)
		if err != nil {
			return nil, err
		}
		pos.Position = ahead + 1
	}
	return pos, nil
}

// Admit promotes waiting entries to offers, FIFO by creation time, up to the
// number of free spots. Safe to call redundantly from any trigger: the event
// lock serializes the capacity read with the promotions it permits, each
// promotion is still a CAS, and losing a race just skips that entry until the
// next trigger.
func (s *Service) Admit(ctx context.Context, eventID string) error {
	release, lockErr := s.lockEvent(ctx, eventID)
	if lockErr != nil {
		return lockErr
	}

	promoted, err := s.promoteWaiting(ctx, eventID)
	release()

	// Timers and lifecycle events for whatever got promoted, even when the
	// loop stopped early; the sweep covers any missing timer.
	for i := range promoted {
		entry := &promoted[i]
		s.scheduleExpiry(entry.EntryID, eventID, s.OfferTTL)
		s.publishEntry(kafka.TopicOfferGranted, entry)
		s.logQueue("ADMIT", entry.EntryID, fmt.Sprintf("offered to user %s on event %s", entry.UserID, eventID))
	}
	return err
}

func (s *Service) promoteWaiting(ctx context.Context, eventID string) ([]models.WaitingListEntry, error) {
	avail, err := s.Ledger.ComputeAvailability(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if avail.FreeSpots <= 0 {
		return nil, nil
	}

	waiting, err := s.DB.ListByEventAndStatus(ctx, eventID, models.StatusWaiting, avail.FreeSpots)
	if err != nil {
		return nil, err
	}

	var promoted []models.WaitingListEntry
	for i := range waiting {
		entry := waiting[i]
		expiresAt := s.Clock.Now().Add(s.OfferTTL)

		err := s.DB.Transition(ctx, entry.EntryID, models.StatusWaiting, models.StatusOffered, &expiresAt)
		if errors.Is(err, ErrStaleTransition) {
			// Entry advanced concurrently; someone else handled it.
			continue
		}
		if err != nil {
			return promoted, err
		}

		entry.Status = models.StatusOffered
		entry.OfferExpiresAt = &expiresAt
		promoted = append(promoted, entry)
	}
	return promoted, nil
}

// Release is the user voluntarily giving up an offer. The conflict is
// surfaced verbatim: a failed CAS means the offer already resolved and the
// caller must see which way.
func (s *Service) Release(ctx context.Context, eventID, entryID, userID string) error {
	entry, err := s.DB.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.UserID != userID {
		return ErrOwnershipMismatch
	}
	if entry.EventID != eventID {
		return ErrOfferNotFound
	}

	if err := s.DB.Transition(ctx, entryID, models.StatusOffered, models.StatusReleased, nil); err != nil {
		return err
	}

	s.cancelExpiry(entryID)
	entry.Status = models.StatusReleased
	entry.OfferExpiresAt = nil
	s.publishEntry(kafka.TopicEntryReleased, entry)
	s.logQueue("RELEASE", entryID, fmt.Sprintf("user %s released offer on event %s", userID, eventID))

	return s.Admit(ctx, eventID)
}

// CancelEventCleanup removes every waiting-list entry for a cancelled event.
// Called by the event-CRUD collaborator; the only path that deletes entries.
func (s *Service) CancelEventCleanup(ctx context.Context, eventID string) (int, error) {
	removed, err := s.DB.DeleteByEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if s.Logger != nil {
		s.Logger.Info("QUEUE", fmt.Sprintf("removed %d waiting list entries for cancelled event %s", removed, eventID))
	}
	return removed, nil
}

func (s *Service) lockEvent(ctx context.Context, eventID string) (func(), error) {
	if s.Locks == nil {
		return func() {}, nil
	}
	release, err := s.Locks.Lock(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock event %s: %w", eventID, err)
	}
	return release, nil
}

func (s *Service) scheduleExpiry(entryID, eventID string, ttl time.Duration) {
	if s.Sched == nil {
		return
	}
	cancel := s.Sched.Schedule(ttl, func() {
		s.timers.Delete(entryID)
		if err := s.ExpireOne(context.Background(), entryID, eventID); err != nil {
			if s.Logger != nil {
				s.Logger.Error("EXPIRY", fmt.Sprintf("timer expiry for entry %s failed: %v", entryID, err))
			}
		}
	})
	s.timers.Store(entryID, cancel)
}

func (s *Service) cancelExpiry(entryID string) {
	if cancel, ok := s.timers.LoadAndDelete(entryID); ok {
		cancel.(func())()
	}
}

func (s *Service) publishEntry(topic string, entry *models.WaitingListEntry) {
	if s.Kafka == nil {
		return
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.Kafka.Publish(topic, entry.EntryID, value); err != nil {
		// Publish failures never fail the queue operation.
		if s.Logger != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish %s for entry %s: %v", topic, entry.EntryID, err))
		}
	}
}

func (s *Service) logQueue(action, entryID, message string) {
	if s.Logger != nil {
		s.Logger.LogQueue(action, entryID, message)
	}
}
