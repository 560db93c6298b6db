package waitlist

import (
	"context"
	"errors"
	"fmt"

	"ms-waitlist/internal/kafka"
	"ms-waitlist/internal/models"
)

// PurchaseProof carries the verified payment reference handed over by the
// payment collaborator. The core never initiates or captures payment.
type PurchaseProof struct {
	PaymentRef string
	Amount     float64
}

// ConfirmPurchase converts an offered entry into a purchased one and records
// the committed ticket. The ticket write and the entry transition run as a
// single atomic unit in the store: if an expiry races the purchase and wins
// the CAS, the ticket write rolls back and the caller sees ErrOfferExpired.
func (s *Service) ConfirmPurchase(ctx context.Context, eventID, userID, entryID string, proof PurchaseProof) (*models.Ticket, error) {
	entry, err := s.DB.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.EventID != eventID {
		return nil, ErrOfferNotFound
	}
	if entry.UserID != userID {
		return nil, ErrOwnershipMismatch
	}
	if entry.Status != models.StatusOffered {
		return nil, ErrOfferNotOffered
	}

	now := s.Clock.Now()
	if entry.OfferExpiresAt == nil || !entry.OfferExpiresAt.After(now) {
		return nil, ErrOfferExpired
	}

	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.IsCancelled {
		return nil, ErrEventCancelled
	}

	ticket, err := s.Tickets.IssueTicket(eventID, userID, proof.PaymentRef, proof.Amount, now)
	if err != nil {
		return nil, fmt.Errorf("failed to issue ticket: %w", err)
	}

	if err := s.DB.FinalizePurchase(ctx, entryID, ticket, event.TotalTickets); err != nil {
		if errors.Is(err, ErrStaleTransition) {
			// The offer resolved concurrently (expiry or release won the CAS);
			// the transaction rolled the ticket back.
			return nil, ErrOfferExpired
		}
		return nil, err
	}

	s.cancelExpiry(entryID)
	entry.Status = models.StatusPurchased
	entry.OfferExpiresAt = nil
	s.publishEntry(kafka.TopicTicketPurchased, entry)
	s.logQueue("PURCHASE", entryID, fmt.Sprintf("user %s purchased ticket %s for event %s", userID, ticket.TicketID, eventID))

	// A purchase frees no capacity, but re-running admission is an idempotent
	// no-op and keeps queue positions moving for observers.
	if err := s.Admit(ctx, eventID); err != nil && s.Logger != nil {
		s.Logger.Error("QUEUE", fmt.Sprintf("post-purchase admit for event %s failed: %v", eventID, err))
	}

	return ticket, nil
}
