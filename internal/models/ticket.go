package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket statuses. Only "valid" and "used" tickets count against event
// capacity; refunds and cancellations hand the spot back.
const (
	TicketStatusValid     = "valid"
	TicketStatusUsed      = "used"
	TicketStatusRefunded  = "refunded"
	TicketStatusCancelled = "cancelled"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID    string    `bun:"ticket_id,pk" json:"ticket_id"`
	EventID     string    `bun:"event_id" json:"event_id"`
	UserID      string    `bun:"user_id" json:"user_id"`
	Status      string    `bun:"status" json:"status"`
	PaymentRef  string    `bun:"payment_ref" json:"payment_ref"`
	Amount      float64   `bun:"amount" json:"amount"`
	QRCode      []byte    `bun:"qr_code" json:"-"`
	PurchasedAt time.Time `bun:"purchased_at" json:"purchased_at"`
}
