package generation

import "time"

// Observer receives pipeline outcomes. internal/metrics provides the
// Prometheus implementation.
type Observer interface {
	ObserveGeneration(family Family, provider, outcome string, d time.Duration)
	ObservePollTransition(from, to PollState)
	ObservePollAttempts(outcome PollState, attempts int)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) ObserveGeneration(Family, string, string, time.Duration) {}
func (NopObserver) ObservePollTransition(PollState, PollState)              {}
func (NopObserver) ObservePollAttempts(PollState, int)                      {}
