package generation

import "context"

// Adapter translates between the abstract request and one provider's wire
// format. Invoke does one provider call and never retries.
type Adapter interface {
	Name() string
	Invoke(ctx context.Context, req GenerationRequest, target ProviderTarget) (RawResponse, error)
}

// LongRunningAdapter is implemented by adapters whose Invoke returns an
// *Operation instead of output.
type LongRunningAdapter interface {
	Adapter
	OperationSource
}

// OperationSource is what the Poller needs from a long-running provider.
type OperationSource interface {
	// PollOperation fetches the current state of the named operation.
	PollOperation(ctx context.Context, name string) (*Operation, error)
	// AuthorizeLocation makes a result location fetchable by the caller.
	AuthorizeLocation(uri string) string
}
