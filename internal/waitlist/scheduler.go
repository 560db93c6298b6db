package waitlist

import "time"

// Clock supplies "now" to the admission engine and expiry subsystem. Injected
// so tests can drive offer deadlines without wall-clock waits.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Scheduler runs a callback once after a delay. The returned cancel func is
// an optimization for offers that resolve early; a stale callback firing
// anyway is harmless because every expiry is CAS-guarded.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

// TimerScheduler is the production scheduler backed by time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
