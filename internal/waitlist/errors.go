package waitlist

import "errors"

// Error taxonomy for the waiting-list core. Every failure is either surfaced
// to the caller as one of these or retried by the next trigger; none is fatal
// to the process.
var (
	// ErrAlreadyQueued is returned from Join when the user already holds an
	// active (waiting or offered) entry for the event.
	ErrAlreadyQueued = errors.New("already in waiting list for this event")

	// ErrDuplicateActiveEntry is the store-level form of the same condition,
	// raised when a concurrent join wins the insert race.
	ErrDuplicateActiveEntry = errors.New("active waiting list entry already exists")

	// ErrEventNotFound is returned when the event registry has no such event.
	ErrEventNotFound = errors.New("event not found")

	// ErrEventCancelled rejects joins and purchases against a cancelled event.
	ErrEventCancelled = errors.New("event is no longer active")

	// ErrStaleTransition signals a lost compare-and-swap: the entry's current
	// status no longer matches what the caller expected. Inside Admit and the
	// sweep this is swallowed (someone else already handled the entry); in
	// ConfirmPurchase and Release it is surfaced because the user must see
	// the state change that beat them.
	ErrStaleTransition = errors.New("waiting list entry status changed concurrently")

	// ErrOfferNotFound is returned when the referenced entry does not exist.
	ErrOfferNotFound = errors.New("waiting list entry not found")

	// ErrOfferNotOffered is returned when the entry exists but is not in the
	// offered state.
	ErrOfferNotOffered = errors.New("waiting list entry is not in offered state")

	// ErrOfferExpired is returned when the offer deadline has passed, or when
	// an expiry raced the purchase and won.
	ErrOfferExpired = errors.New("ticket offer has expired")

	// ErrOwnershipMismatch is returned when the entry belongs to another user.
	ErrOwnershipMismatch = errors.New("waiting list entry does not belong to this user")

	// ErrRateLimited is returned when the join rate limiter rejects the user.
	ErrRateLimited = errors.New("too many join attempts, try again later")

	// ErrSoldOut is returned when committing a ticket would exceed the event's
	// capacity. The last-line oversell guard inside the purchase transaction.
	ErrSoldOut = errors.New("event is sold out")
)
