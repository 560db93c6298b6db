package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-waitlist/internal/models"
	"ms-waitlist/internal/waitlist"
)

// DB is the waiting-list store. It is the sole owner of waiting_list rows;
// every mutation goes through the conditional-update Transition primitive so
// concurrent expiry, purchase and admission calls cannot corrupt an entry.
type DB struct {
	Bun *bun.DB
}

// InsertEntry creates a new entry for (eventID, userID). The duplicate check
// and the insert run in one transaction, and a partial unique index on active
// rows (see migrations) backs the check against concurrent joins for the same
// pair.
func (d *DB) InsertEntry(ctx context.Context, eventID, userID, status string, offerExpiresAt *time.Time, createdAt time.Time) (*models.WaitingListEntry, error) {
	entry := &models.WaitingListEntry{
		EntryID:        uuid.NewString(),
		EventID:        eventID,
		UserID:         userID,
		Status:         status,
		OfferExpiresAt: offerExpiresAt,
		CreatedAt:      createdAt,
	}

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*models.WaitingListEntry)(nil)).
			Where("event_id = ?", eventID).
			Where("user_id = ?", userID).
			Where("status IN (?)", bun.In([]string{models.StatusWaiting, models.StatusOffered})).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return waitlist.ErrDuplicateActiveEntry
		}

		_, err = tx.NewInsert().Model(entry).Exec(ctx)
		if err != nil && isUniqueViolation(err) {
			return waitlist.ErrDuplicateActiveEntry
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Transition moves an entry from expected to next status, optionally updating
// the offer deadline. It is a compare-and-swap: the update only lands if the
// row still carries the expected status, and a zero row count is reported as
// ErrStaleTransition. This is the single guarded mutation primitive the
// admission engine, expiry subsystem and purchase flow are built on.
func (d *DB) Transition(ctx context.Context, entryID, expected, next string, offerExpiresAt *time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.WaitingListEntry)(nil)).
		Set("status = ?", next).
		Set("offer_expires_at = ?", offerExpiresAt).
		Where("entry_id = ?", entryID).
		Where("status = ?", expected).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return waitlist.ErrStaleTransition
	}
	return nil
}

// GetEntry fetches one entry by ID.
func (d *DB) GetEntry(ctx context.Context, entryID string) (*models.WaitingListEntry, error) {
	var entry models.WaitingListEntry
	err := d.Bun.NewSelect().
		Model(&entry).
		Where("entry_id = ?", entryID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, waitlist.ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetLatestEntryForUser returns the user's most recent entry for an event, or
// nil when the user never joined. Terminal entries are included so the UI can
// show "offer expired" rather than "not in queue".
func (d *DB) GetLatestEntryForUser(ctx context.Context, eventID, userID string) (*models.WaitingListEntry, error) {
	var entry models.WaitingListEntry
	err := d.Bun.NewSelect().
		Model(&entry).
		Where("event_id = ?", eventID).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, entry_id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByEventAndStatus returns up to limit entries in FIFO order. Ties on
// created_at break by entry_id so admission is deterministic.
func (d *DB) ListByEventAndStatus(ctx context.Context, eventID, status string, limit int) ([]models.WaitingListEntry, error) {
	var entries []models.WaitingListEntry
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("event_id = ?", eventID).
		Where("status = ?", status).
		OrderExpr("created_at ASC, entry_id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListExpiredOffers returns every offered entry whose deadline passed,
// across all events. Used by the reconciliation sweep.
func (d *DB) ListExpiredOffers(ctx context.Context, now time.Time) ([]models.WaitingListEntry, error) {
	var entries []models.WaitingListEntry
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("status = ?", models.StatusOffered).
		Where("offer_expires_at < ?", now).
		OrderExpr("event_id ASC, created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// CountLiveOffers counts offered entries whose deadline is strictly in the
// future. An offer whose timer has not fired but whose deadline has passed no
// longer occupies capacity; that is what lets the sweep be a pure fail-safe.
func (d *DB) CountLiveOffers(ctx context.Context, eventID string, now time.Time) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.WaitingListEntry)(nil)).
		Where("event_id = ?", eventID).
		Where("status = ?", models.StatusOffered).
		Where("offer_expires_at > ?", now).
		Count(ctx)
}

// CountAhead counts active entries strictly earlier than the given entry.
// Both waiting and offered entries count: an earlier offer still holds a
// place in line until it resolves. Entries sharing the same creation instant
// do not count against each other, so simultaneous joiners each see the
// smaller position.
func (d *DB) CountAhead(ctx context.Context, entry *models.WaitingListEntry) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.WaitingListEntry)(nil)).
		Where("event_id = ?", entry.EventID).
		Where("status IN (?)", bun.In([]string{models.StatusWaiting, models.StatusOffered})).
		Where("created_at < ?", entry.CreatedAt).
		Count(ctx)
}

// FinalizePurchase records the committed ticket and flips the entry to
// purchased as one atomic unit. If the CAS loses (an expiry raced in and won)
// the ticket write rolls back with the transaction and ErrStaleTransition is
// returned, so capacity is never committed for a dead offer. The committed
// count is re-checked against capacity inside the same transaction as the
// last-line guard: even if two offers for the final spot slipped past
// admission, only one purchase can commit.
func (d *DB) FinalizePurchase(ctx context.Context, entryID string, ticket *models.Ticket, capacity int) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.WaitingListEntry)(nil)).
			Set("status = ?", models.StatusPurchased).
			Set("offer_expires_at = NULL").
			Where("entry_id = ?", entryID).
			Where("status = ?", models.StatusOffered).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return waitlist.ErrStaleTransition
		}

		committed, err := tx.NewSelect().
			Model((*models.Ticket)(nil)).
			Where("event_id = ?", ticket.EventID).
			Where("status IN (?)", bun.In([]string{models.TicketStatusValid, models.TicketStatusUsed})).
			Count(ctx)
		if err != nil {
			return err
		}
		if committed >= capacity {
			return waitlist.ErrSoldOut
		}

		_, err = tx.NewInsert().Model(ticket).Exec(ctx)
		return err
	})
}

// DeleteByEvent removes every entry for an event. Only used by the
// event-cancellation cleanup.
func (d *DB) DeleteByEvent(ctx context.Context, eventID string) (int, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.WaitingListEntry)(nil)).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
