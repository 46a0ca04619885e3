// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Classify maps an arbitrary error into a ChorusError with operational
// and retryable flags set. Existing ChorusErrors pass through untouched.
func Classify(err error) *ChorusError {
	if err == nil {
		return nil
	}

	var ce *ChorusError
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(CodeTimeout, "operation deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		// Caller gave up; retrying on its behalf would be wrong.
		return New(CodeTimeout, "operation canceled", err).WithRetryable(false)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return New(CodeTimeout, "network timeout", err)
		}
		return New(CodeNetworkError, "network failure", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return New(CodeNetworkError, "dns resolution failed", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "invalid_api_key", "invalid api key", "unauthorized", "permission denied", "forbidden", "401", "403"):
		return New(CodeAuthError, "authentication failed", err)
	case containsAny(msg, "insufficient_quota", "quota exceeded", "billing"):
		return New(CodeQuotaExceeded, "provider quota exhausted", err)
	case containsAny(msg, "rate limit", "rate_limit", "too many requests", "429"):
		return New(CodeRateLimited, "rate limited", err)
	case containsAny(msg, "econnreset", "enotfound", "connection reset", "connection refused", "no such host", "broken pipe"):
		return New(CodeNetworkError, "transient network failure", err)
	case containsAny(msg, "timeout", "timed out", "deadline"):
		return New(CodeTimeout, "operation timed out", err)
	case containsAny(msg, "internal server error", "bad gateway", "service unavailable", "gateway timeout", "overloaded", "500", "502", "503", "529"):
		return New(CodeServerError, "upstream server error", err)
	}

	// Unknown errors are treated as programmer errors: surfaced, never retried.
	return Programmer("unclassified error", err)
}

// ClassifyStatus maps an HTTP status code to a ChorusError.
func ClassifyStatus(status int, cause error) *ChorusError {
	switch {
	case status == 401 || status == 403:
		return New(CodeAuthError, fmt.Sprintf("authentication failed (status %d)", status), cause)
	case status == 402:
		return New(CodeQuotaExceeded, "provider quota exhausted", cause)
	case status == 408:
		return New(CodeTimeout, "request timed out", cause)
	case status == 429:
		return New(CodeRateLimited, "rate limited", cause)
	case status >= 500:
		return New(CodeServerError, fmt.Sprintf("upstream server error (status %d)", status), cause)
	case status >= 400:
		return New(CodeValidationError, fmt.Sprintf("request rejected (status %d)", status), cause)
	default:
		return New(CodeInternal, fmt.Sprintf("unexpected status %d", status), cause)
	}
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable
}

// IsOperational reports whether the error is operational (expected failure
// mode) as opposed to a programmer bug.
func IsOperational(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Operational
}

// RetryAfter extracts a suggested wait before the next attempt, if the
// error carries one (circuit breaker rejections do).
func RetryAfter(err error) (time.Duration, bool) {
	ce := AsChorusError(err)
	if ce == nil || ce.Code != CodeCircuitOpen {
		return 0, false
	}
	raw, ok := ce.Context["next_attempt_at"].(string)
	if !ok {
		return 0, false
	}
	at, perr := time.Parse(time.RFC3339Nano, raw)
	if perr != nil {
		return 0, false
	}
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	return d, true
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
