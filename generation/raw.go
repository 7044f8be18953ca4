package generation

import (
	"context"
	"encoding/json"
)

// RawResponse is the tagged union of provider output shapes. Adapters build
// it; only the Poller and the Normalizer look inside.
type RawResponse interface {
	rawResponse()
}

// Item is one element of provider output. Every Item is also a valid
// single-element RawResponse.
type Item interface {
	RawResponse
	item()
}

// Sequence is an ordered list of output items.
type Sequence []Item

// Accessor is a deferred location, such as a file handle whose URL must be
// asked for.
type Accessor struct {
	Resolve func(ctx context.Context) (string, error)
}

// Location is an item that exposes its URL directly.
type Location struct {
	URL string
}

// Scalar is an item with no known structure; it is coerced to a string.
type Scalar struct {
	Value any
}

// InlinePayload is base64 encoded media returned in the response body.
type InlinePayload struct {
	MimeType string
	Data     string
}

// Operation is a long-running operation descriptor.
type Operation struct {
	Name     string
	Done     bool
	Response map[string]any
	Error    *OperationError
	// Raw is the undecoded body, kept for diagnostics.
	Raw json.RawMessage
}

// OperationError is the error block of a finished or failed operation.
type OperationError struct {
	Code    int
	Message string
}

func (Sequence) rawResponse()      {}
func (Accessor) rawResponse()      {}
func (Location) rawResponse()      {}
func (Scalar) rawResponse()        {}
func (InlinePayload) rawResponse() {}
func (*Operation) rawResponse()    {}

func (Accessor) item()      {}
func (Location) item()      {}
func (Scalar) item()        {}
func (InlinePayload) item() {}
