package generation

import "time"

// Kind is the media kind of a result.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// GenerationResult is the only structure that leaves the core on success.
// AllURLs is never empty and PrimaryURL is always AllURLs[0].
type GenerationResult struct {
	PrimaryURL string   `json:"primaryUrl"`
	AllURLs    []string `json:"allUrls"`
	Kind       Kind     `json:"kind"`
}

// HandleState is the lifecycle state of an OperationHandle.
type HandleState string

const (
	HandlePending  HandleState = "pending"
	HandleDone     HandleState = "done"
	HandleFailed   HandleState = "failed"
	HandleRejected HandleState = "rejected"
	HandleTimedOut HandleState = "timed-out"
)

// Terminal reports whether no further transition is possible.
func (s HandleState) Terminal() bool {
	return s != HandlePending
}

// OperationHandle tracks one in-flight long-running operation. Only the
// Poller mutates it.
type OperationHandle struct {
	ID        string
	CreatedAt time.Time
	Attempts  int
	State     HandleState
}

// NewOperationHandle wraps a provider operation id in a pending handle.
func NewOperationHandle(id string, now time.Time) *OperationHandle {
	return &OperationHandle{ID: id, CreatedAt: now, State: HandlePending}
}
