package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-waitlist/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CountCommitted returns the number of tickets that occupy capacity for an
// event. Refunded and cancelled tickets hand their spot back, so only valid
// and used tickets count.
func (d *DB) CountCommitted(ctx context.Context, eventID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Where("status IN (?)", bun.In([]string{models.TicketStatusValid, models.TicketStatusUsed})).
		Count(ctx)
}

// GetTicketsByUser returns all tickets held by a user, newest first.
func (d *DB) GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("user_id = ?", userID).
		Order("purchased_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetTicketByID fetches a single ticket.
func (d *DB) GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}
