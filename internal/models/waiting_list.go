package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Waiting-list entry statuses.
//
// waiting and offered are the two active states; at most one active entry may
// exist per (event, user) pair. purchased, expired and released are terminal.
// released is kept separate from expired so observers can tell a voluntary
// give-up from a timeout.
const (
	StatusWaiting   = "waiting"
	StatusOffered   = "offered"
	StatusPurchased = "purchased"
	StatusExpired   = "expired"
	StatusReleased  = "released"
)

type WaitingListEntry struct {
	bun.BaseModel `bun:"table:waiting_list"`

	EntryID string `bun:"entry_id,pk" json:"entry_id"`
	EventID string `bun:"event_id" json:"event_id"`
	UserID  string `bun:"user_id" json:"user_id"`
	Status  string `bun:"status" json:"status"`

	// Set only while Status == offered. An offer whose deadline has passed no
	// longer occupies capacity even before the sweeper marks it expired.
	OfferExpiresAt *time.Time `bun:"offer_expires_at,nullzero" json:"offer_expires_at,omitempty"`

	CreatedAt time.Time `bun:"created_at" json:"created_at"`
}

// IsActive reports whether the entry still holds a place in line.
func (e *WaitingListEntry) IsActive() bool {
	return e.Status == StatusWaiting || e.Status == StatusOffered
}

// JoinResult is returned to a user joining the queue: either an immediate
// time-boxed offer or a 1-indexed position in line.
type JoinResult struct {
	EntryID        string     `json:"entry_id"`
	Status         string     `json:"status"`
	Position       int        `json:"position,omitempty"`
	OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty"`
	Message        string     `json:"message"`
}

// QueuePosition describes where a user currently stands for an event.
// Position counts both waiting and offered entries ahead: an earlier offer
// still occupies a place in line until it resolves.
type QueuePosition struct {
	EntryID        string     `json:"entry_id"`
	Status         string     `json:"status"`
	Position       int        `json:"position,omitempty"`
	OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty"`
}
