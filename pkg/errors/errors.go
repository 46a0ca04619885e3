// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling and operational/retryable
// classification for Chorus.
package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Code classifies Chorus errors for monitoring, retry decisions and recovery.
type Code string

const (
	// CodeModelFailure indicates an upstream model provider call failed.
	CodeModelFailure Code = "MODEL_FAILURE"

	// CodeSynthesisError indicates the synthesis engine failed.
	CodeSynthesisError Code = "SYNTHESIS_ERROR"

	// CodeVotingError indicates the voting engine failed.
	CodeVotingError Code = "VOTING_ERROR"

	// CodeValidationError indicates the input was invalid.
	CodeValidationError Code = "VALIDATION_ERROR"

	// CodeCircuitOpen indicates a circuit breaker rejected the call.
	CodeCircuitOpen Code = "CIRCUIT_OPEN"

	// CodeTimeout indicates an operation exceeded its deadline.
	CodeTimeout Code = "TIMEOUT"

	// CodeRateLimited indicates upstream rate limiting (HTTP 429).
	CodeRateLimited Code = "RATE_LIMITED"

	// CodeAuthError indicates credential or permission failure (401/403).
	CodeAuthError Code = "AUTH_ERROR"

	// CodeQuotaExceeded indicates the provider quota is exhausted.
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"

	// CodeNetworkError indicates a transient network failure.
	CodeNetworkError Code = "NETWORK_ERROR"

	// CodeServerError indicates an upstream 5xx response.
	CodeServerError Code = "SERVER_ERROR"

	// CodeInternal indicates an internal system error.
	CodeInternal Code = "INTERNAL_ERROR"
)

// ChorusError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type ChorusError struct {
	Code        Code
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Operational bool
	Retryable   bool
	Timestamp   time.Time
	StatusCode  int
}

// Error implements the error interface.
func (e *ChorusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *ChorusError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *ChorusError) MarshalJSON() ([]byte, error) {
	type Alias ChorusError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Operational bool   `json:"operational"`
		Retryable   bool   `json:"retryable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Operational: e.Operational,
		Retryable:   e.Retryable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new ChorusError with the given code, message, and cause.
// Operational and Retryable flags default from the code's classification.
func New(code Code, msg string, cause error) *ChorusError {
	operational, retryable := defaultFlags(code)
	return &ChorusError{
		Code:        code,
		Message:     msg,
		Err:         cause,
		Context:     make(map[string]interface{}),
		Attributes:  make(map[string]string),
		Operational: operational,
		Retryable:   retryable,
		Timestamp:   time.Now().UTC(),
		StatusCode:  codeToStatusCode(code),
	}
}

// ModelFailure creates a model provider failure error.
func ModelFailure(provider, model string, cause error) *ChorusError {
	e := New(CodeModelFailure, fmt.Sprintf("model call failed: %s/%s", provider, model), cause).
		WithContext("provider", provider).
		WithContext("model", model)
	// The cause decides retryability; auth and quota failures must not retry.
	if cause != nil {
		c := Classify(cause)
		e.Retryable = c.Retryable
		e.Operational = c.Operational
	}
	return e
}

// CircuitOpen creates a circuit-breaker-open rejection. It is never
// retryable at the call site; callers route to a fallback or wait.
func CircuitOpen(service string, nextAttemptAt time.Time) *ChorusError {
	return New(CodeCircuitOpen, fmt.Sprintf("circuit breaker open: %s", service), nil).
		WithContext("service", service).
		WithContext("next_attempt_at", nextAttemptAt.UTC().Format(time.RFC3339Nano))
}

// Programmer marks a bug-class error: not operational, never retried.
func Programmer(msg string, cause error) *ChorusError {
	e := New(CodeInternal, msg, cause)
	e.Operational = false
	e.Retryable = false
	return e
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *ChorusError) WithContext(key string, value interface{}) *ChorusError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *ChorusError) WithAttribute(key, value string) *ChorusError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRetryable overrides the retryable flag.
// Returns the error for method chaining.
func (e *ChorusError) WithRetryable(retryable bool) *ChorusError {
	e.Retryable = retryable
	return e
}

// WithOperational overrides the operational flag.
// Returns the error for method chaining.
func (e *ChorusError) WithOperational(operational bool) *ChorusError {
	e.Operational = operational
	return e
}

// AsChorusError attempts to convert an error to a ChorusError.
// Returns the error as ChorusError if it is one, or classifies it otherwise.
func AsChorusError(err error) *ChorusError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*ChorusError); ok {
		return ce
	}
	return Classify(err)
}

// defaultFlags returns the (operational, retryable) classification for a code.
func defaultFlags(code Code) (bool, bool) {
	switch code {
	case CodeTimeout, CodeRateLimited, CodeNetworkError, CodeServerError:
		return true, true
	case CodeAuthError, CodeQuotaExceeded, CodeValidationError, CodeCircuitOpen:
		return true, false
	case CodeModelFailure, CodeSynthesisError, CodeVotingError:
		return true, true
	default:
		return false, false
	}
}

// codeToStatusCode maps error codes to HTTP-equivalent status codes.
func codeToStatusCode(code Code) int {
	switch code {
	case CodeValidationError:
		return 400
	case CodeAuthError:
		return 401
	case CodeTimeout:
		return 408
	case CodeRateLimited, CodeQuotaExceeded:
		return 429
	case CodeCircuitOpen:
		return 503
	case CodeServerError:
		return 502
	default:
		return 500
	}
}
