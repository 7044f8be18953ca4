package generation

import "time"

// Scheduler supplies the inter-poll delay. Tests replace it to run the Poller
// without waiting on the wall clock.
type Scheduler interface {
	After(d time.Duration) <-chan time.Time
}

// RealScheduler waits on the runtime timer.
type RealScheduler struct{}

// After implements Scheduler.
func (RealScheduler) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// ImmediateScheduler fires at once. It is used by tests and by callers that
// poll on their own cadence.
type ImmediateScheduler struct{}

// After implements Scheduler.
func (ImmediateScheduler) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}
