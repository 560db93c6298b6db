package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	EventID      string    `bun:"event_id,pk" json:"event_id"`
	Name         string    `bun:"name" json:"name"`
	Location     string    `bun:"location" json:"location"`
	EventDate    time.Time `bun:"event_date" json:"event_date"`
	Price        float64   `bun:"price" json:"price"`
	TotalTickets int       `bun:"total_tickets" json:"total_tickets"`
	OrganizerID  string    `bun:"organizer_id" json:"organizer_id"`
	IsCancelled  bool      `bun:"is_cancelled" json:"is_cancelled"`
	CreatedAt    time.Time `bun:"created_at" json:"created_at"`
}

// Availability is the capacity snapshot for an event. It is computed fresh on
// every request and never cached: purchased and offer counts change
// continuously and the free-spot figure gates admission.
type Availability struct {
	TotalTickets   int  `json:"total_tickets"`
	PurchasedCount int  `json:"purchased_count"`
	ActiveOffers   int  `json:"active_offers"`
	FreeSpots      int  `json:"free_spots"`
	IsSoldOut      bool `json:"is_sold_out"`
}
