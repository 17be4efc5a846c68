package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed embedding call.
type ErrorKind string

const (
	// KindTransport covers network and connection failures, timeouts and
	// provider-side availability errors (5xx).
	KindTransport ErrorKind = "transport"

	// KindRateLimit is an explicit rate-limit signal from the provider.
	KindRateLimit ErrorKind = "rate_limit"

	// KindProvider is a semantic rejection such as malformed or oversized input.
	KindProvider ErrorKind = "provider"

	// KindUnknown is reported for errors that were not produced by an Embedder.
	KindUnknown ErrorKind = "unknown"
)

var (
	// ErrTransport matches any *EmbedError of kind KindTransport.
	ErrTransport = errors.New("embedding transport error")

	// ErrRateLimit matches any *EmbedError of kind KindRateLimit.
	ErrRateLimit = errors.New("embedding rate limited")

	// ErrProvider matches any *EmbedError of kind KindProvider.
	ErrProvider = errors.New("embedding provider error")

	// ErrEmptyEmbedding is wrapped in a provider error when a call succeeds
	// without returning a vector.
	ErrEmptyEmbedding = errors.New("provider returned no embedding")
)

// EmbedError is the error returned by Embedder implementations.
type EmbedError struct {
	Kind       ErrorKind
	StatusCode int // HTTP status when the provider answered, 0 otherwise
	Err        error
}

func (e *EmbedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying client error.
func (e *EmbedError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels (ErrTransport, ErrRateLimit, ErrProvider).
func (e *EmbedError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrRateLimit:
		return e.Kind == KindRateLimit
	case ErrProvider:
		return e.Kind == KindProvider
	}
	return false
}

// NewTransportError wraps err as a transport failure.
func NewTransportError(err error) *EmbedError {
	return &EmbedError{Kind: KindTransport, Err: err}
}

// NewRateLimitError wraps err as a rate-limit failure.
func NewRateLimitError(statusCode int, err error) *EmbedError {
	return &EmbedError{Kind: KindRateLimit, StatusCode: statusCode, Err: err}
}

// NewProviderError wraps err as a provider rejection.
func NewProviderError(statusCode int, err error) *EmbedError {
	return &EmbedError{Kind: KindProvider, StatusCode: statusCode, Err: err}
}

// ErrorFromStatus classifies an error response by its HTTP status code.
// 429 is a rate limit, 5xx and 408 are transport failures, anything else
// (typically 4xx) is a provider rejection.
func ErrorFromStatus(statusCode int, err error) *EmbedError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(statusCode, err)
	case statusCode == http.StatusRequestTimeout, statusCode >= 500:
		return &EmbedError{Kind: KindTransport, StatusCode: statusCode, Err: err}
	default:
		return NewProviderError(statusCode, err)
	}
}

// KindOf reports the kind of an embedding error.
// Context cancellation and deadlines count as transport failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var embedErr *EmbedError
	if errors.As(err, &embedErr) {
		return embedErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	return KindUnknown
}

// IsRetryable reports whether the failed call may succeed if repeated after
// a backoff. Only explicit rate limiting qualifies.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit)
}
