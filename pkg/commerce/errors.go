package commerce

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (except 429).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents connection-level errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents deadline and timeout errors.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassAuth represents credential and token errors.
	ErrorClassAuth ErrorClass = "auth"
)

// AuthError reports a failure to acquire or use an access token. It is
// terminal: invalid credentials are never retried.
type AuthError struct {
	Mode   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("commerce auth (%s): %s: %v", e.Mode, e.Reason, e.Err)
	}
	return fmt.Sprintf("commerce auth (%s): %s", e.Mode, e.Reason)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// HTTPError represents a non-2xx response from the Commerce API.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string

	// RetryAfter is the parsed Retry-After hint on 429 responses, zero
	// otherwise.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("commerce %s error (status %d): %s", e.Class(), e.StatusCode, e.Body)
	}
	return fmt.Sprintf("commerce %s error (status %d): %s", e.Class(), e.StatusCode, e.URL)
}

// Class returns the error classification derived from the status code.
func (e *HTTPError) Class() ErrorClass {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case e.StatusCode >= 500:
		return ErrorClassServer
	case e.StatusCode >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// TimeoutError reports a request that exceeded its deadline.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("commerce request to %s timed out after %s", e.URL, e.Timeout)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// FetchError reports an aborted catalog fetch. Fetched carries the number of
// products accumulated before the failing page, for the run's step log.
type FetchError struct {
	Page    int
	Fetched int
	Err     error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("product fetch failed on page %d after %d products: %v", e.Page, e.Fetched, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Classify categorizes an error for retry decisions and observability.
func Classify(err error) ErrorClass {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return ErrorClassAuth
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Class()
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return ErrorClassTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}

	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors should NOT be retried
		return false
	case ErrorClassAuth:
		// Invalid credentials never become valid by retrying
		return false
	case ErrorClassServer:
		// 5xx server errors should be retried
		return true
	case ErrorClassRateLimit:
		// 429 responses should be retried after backing off
		return true
	case ErrorClassNetwork, ErrorClassTimeout:
		// Transient transport errors should be retried
		return true
	default:
		return false
	}
}
