package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the transport.
var (
	// ErrRetryExhausted is wrapped by TransportError when all attempts failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrBodyTooLarge is returned when a response exceeds Config.MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

// ErrorClass represents a classification of failed attempts.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network, timeout and body read errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Outcome is the verdict on a single attempt.
type Outcome int

const (
	// OutcomeSuccess means the attempt produced a usable response.
	OutcomeSuccess Outcome = iota

	// OutcomeRetryable means the attempt failed transiently.
	OutcomeRetryable

	// OutcomeFatal means the fetch must stop without further attempts.
	OutcomeFatal
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// HTTPStatusError is a non-retryable HTTP status (4xx other than 429, or an
// unexpected status class).
type HTTPStatusError struct {
	StatusCode int
	Status     string
	URL        string

	// Body holds the start of the response body, for diagnostics.
	Body string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("GET %s: %s: %s", e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// TransportError is returned when retryable failures used up every attempt.
type TransportError struct {
	Attempts   int
	ErrorClass ErrorClass

	// StatusCode of the last attempt, 0 for network failures.
	StatusCode int

	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d) after %d attempts: %v",
			e.ErrorClass, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s error after %d attempts: %v", e.ErrorClass, e.Attempts, e.Err)
}

// Unwrap exposes ErrRetryExhausted and the last attempt's error.
func (e *TransportError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Err}
}

// classifyStatus maps an HTTP status to an ErrorClass; "" means success.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx is a request problem; retrying cannot fix it
		return false
	}
}
