package waitlist

import "context"

// EventLocker serializes the capacity-check-then-grant sections per event.
// The availability snapshot is advisory on its own; holding the event lock
// across the read and the write that it gates is what makes "exactly one
// offer for the last free spot" hold under concurrent joins.
type EventLocker interface {
	Lock(ctx context.Context, eventID string) (release func(), err error)
}
