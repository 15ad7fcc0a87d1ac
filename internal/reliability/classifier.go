package reliability

import (
	"errors"
	"fmt"
)

// ProviderError describes a failed call to an external speech or language provider.
type ProviderError struct {
	Provider   string
	Stage      string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Stage, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// HTTPError builds a ProviderError from a non-2xx provider response.
func HTTPError(provider, stage string, status int, body string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Stage:      stage,
		StatusCode: status,
		Retryable:  IsRetryableHTTPStatus(status),
		Err:        errors.New(body),
	}
}

// TransportError builds a ProviderError for a request that never produced a response.
func TransportError(provider, stage string, err error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Stage:     stage,
		Retryable: true,
		Err:       err,
	}
}

// ProviderOf returns the provider and stage labels of err, or "unknown".
func ProviderOf(err error) (provider, stage string) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Provider, pe.Stage
	}
	return "unknown", "unknown"
}

// IsRetryable reports whether err was classified as transient. Nothing in
// the session retries today; the flag feeds logs and metrics.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableRealtimeMessageType classifies retryable websocket error messages.
func IsRetryableRealtimeMessageType(messageType string) bool {
	switch messageType {
	case "rate_limited", "resource_exhausted", "queue_overflow", "error":
		return true
	default:
		return false
	}
}
