package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInvalidModel   ErrorCode = "INVALID_MODEL"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrNotFound       ErrorCode = "NOT_FOUND"
)

// Provider error codes
const (
	ErrProviderTransport ErrorCode = "PROVIDER_TRANSPORT"
	ErrProviderRejected  ErrorCode = "PROVIDER_REJECTED"
	ErrProviderMalformed ErrorCode = "PROVIDER_MALFORMED"
	ErrSafetyRejected    ErrorCode = "SAFETY_REJECTED"
	ErrExtraction        ErrorCode = "EXTRACTION_FAILED"
	ErrTimeout           ErrorCode = "TIMEOUT"
)

// Service error codes
const (
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// ProviderErrorKind classifies a failed provider call.
type ProviderErrorKind string

const (
	ProviderTransport ProviderErrorKind = "transport"
	ProviderRejected  ProviderErrorKind = "rejected"
	ProviderMalformed ProviderErrorKind = "malformed"
)

// MaxExcerptLen bounds the raw payload excerpt carried by extraction errors.
const MaxExcerptLen = 500

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Excerpt    string    `json:"excerpt,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	code := string(e.Code)
	if e.Stage != "" {
		code = code + "@" + e.Stage
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithStage records the pipeline stage the error originated from.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// NewInvalidRequestError reports a caller input fault.
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(http.StatusBadRequest)
}

// NewInvalidModelError reports a model identifier that no provider family recognises.
func NewInvalidModelError(modelID string) *Error {
	return NewError(ErrInvalidModel, fmt.Sprintf("unrecognized model identifier %q", modelID)).
		WithHTTPStatus(http.StatusBadRequest)
}

// NewProviderError builds the provider failure for the given kind.
// Transport failures are the only retryable kind.
func NewProviderError(kind ProviderErrorKind, provider, message string) *Error {
	code := ErrProviderRejected
	switch kind {
	case ProviderTransport:
		code = ErrProviderTransport
	case ProviderMalformed:
		code = ErrProviderMalformed
	}
	return NewError(code, message).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(kind == ProviderTransport).
		WithProvider(provider)
}

// NewSafetyRejectedError reports a content-policy refusal. It is terminal.
func NewSafetyRejectedError(provider, reason string) *Error {
	e := NewError(ErrSafetyRejected, fmt.Sprintf("request blocked by provider safety filter: %s", reason)).
		WithHTTPStatus(http.StatusBadGateway).
		WithProvider(provider)
	e.Reason = reason
	return e
}

// NewExtractionError reports an unrecognised response shape. Only a bounded
// excerpt of raw is kept.
func NewExtractionError(message string, raw []byte) *Error {
	e := NewError(ErrExtraction, message).WithHTTPStatus(http.StatusBadGateway)
	e.Excerpt = Excerpt(raw, MaxExcerptLen)
	return e
}

// NewTimeoutError reports an exhausted wait.
func NewTimeoutError(message string) *Error {
	return NewError(ErrTimeout, message).WithHTTPStatus(http.StatusGatewayTimeout)
}

// Excerpt returns at most n bytes of raw, cut on a rune boundary.
func Excerpt(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	cut := n
	for cut > 0 && raw[cut]&0xC0 == 0x80 {
		cut--
	}
	return string(raw[:cut])
}

// Tag stamps stage on err. Structured errors keep their code; anything else
// becomes an internal error carrying err as its cause.
func Tag(err error, stage string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Stage == "" {
			e.Stage = stage
		}
		return e
	}
	return NewError(ErrInternalError, err.Error()).
		WithHTTPStatus(http.StatusInternalServerError).
		WithCause(err).
		WithStage(stage)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AsError returns the structured error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
