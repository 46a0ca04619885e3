// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	e := New(CodeRateLimited, "slow down", nil)
	if !e.Operational {
		t.Error("rate limit errors should be operational")
	}
	if !e.Retryable {
		t.Error("rate limit errors should be retryable")
	}
	if e.StatusCode != 429 {
		t.Errorf("expected status 429, got %d", e.StatusCode)
	}
}

func TestAuthNotRetryable(t *testing.T) {
	e := New(CodeAuthError, "bad key", nil)
	if e.Retryable {
		t.Error("auth errors must not be retryable")
	}
	if !e.Operational {
		t.Error("auth errors are operational")
	}
}

func TestProgrammerError(t *testing.T) {
	e := Programmer("nil deref guard", nil)
	if e.Operational || e.Retryable {
		t.Error("programmer errors are neither operational nor retryable")
	}
}

func TestCircuitOpenNotRetryable(t *testing.T) {
	next := time.Now().Add(time.Minute)
	e := CircuitOpen("openai", next)
	if e.Retryable {
		t.Error("circuit open must not be retryable at the call site")
	}
	wait, ok := RetryAfter(e)
	if !ok {
		t.Fatal("expected retry-after hint on circuit open error")
	}
	if wait <= 0 || wait > time.Minute {
		t.Errorf("unexpected retry-after: %v", wait)
	}
}

func TestClassifyDeadline(t *testing.T) {
	ce := Classify(context.DeadlineExceeded)
	if ce.Code != CodeTimeout {
		t.Errorf("expected TIMEOUT, got %s", ce.Code)
	}
	if !ce.Retryable {
		t.Error("deadline exceeded should be retryable")
	}
}

func TestClassifyCanceledNotRetryable(t *testing.T) {
	ce := Classify(context.Canceled)
	if ce.Retryable {
		t.Error("caller cancellation should not be retried")
	}
}

func TestClassifyByMessage(t *testing.T) {
	cases := []struct {
		msg       string
		code      Code
		retryable bool
	}{
		{"read tcp: ECONNRESET", CodeNetworkError, true},
		{"dial: no such host", CodeNetworkError, true},
		{"request failed: 429 Too Many Requests", CodeRateLimited, true},
		{"invalid_api_key provided", CodeAuthError, false},
		{"insufficient_quota for this account", CodeQuotaExceeded, false},
		{"upstream: 503 Service Unavailable", CodeServerError, true},
	}
	for _, tc := range cases {
		ce := Classify(errors.New(tc.msg))
		if ce.Code != tc.code {
			t.Errorf("%q: expected %s, got %s", tc.msg, tc.code, ce.Code)
		}
		if ce.Retryable != tc.retryable {
			t.Errorf("%q: expected retryable=%v", tc.msg, tc.retryable)
		}
	}
}

func TestClassifyUnknownIsProgrammer(t *testing.T) {
	ce := Classify(errors.New("something completely different"))
	if ce.Operational {
		t.Error("unclassified errors are treated as programmer bugs")
	}
}

func TestClassifyStatus(t *testing.T) {
	if ClassifyStatus(401, nil).Code != CodeAuthError {
		t.Error("401 should classify as auth error")
	}
	if ClassifyStatus(429, nil).Code != CodeRateLimited {
		t.Error("429 should classify as rate limited")
	}
	if ClassifyStatus(503, nil).Code != CodeServerError {
		t.Error("503 should classify as server error")
	}
	if !ClassifyStatus(503, nil).Retryable {
		t.Error("5xx should be retryable")
	}
	if ClassifyStatus(400, nil).Retryable {
		t.Error("400 should not be retryable")
	}
}

func TestModelFailureInheritsCauseFlags(t *testing.T) {
	cause := New(CodeAuthError, "bad key", nil)
	e := ModelFailure("openai", "gpt-4o", cause)
	if e.Retryable {
		t.Error("model failure caused by auth error must not be retryable")
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	e := New(CodeInternal, "wrapped", cause)
	if !errors.Is(e, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

func TestEnvelopeCodeFormat(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	code := EnvelopeCodeAt("ensemble", TypeTimeout, at)
	parts := strings.Split(code, "-")
	if len(parts) != 3 {
		t.Fatalf("expected 3 code segments, got %q", code)
	}
	if parts[0] != "ENS" || parts[1] != "TIM" {
		t.Errorf("unexpected abbreviations in %q", code)
	}
	// Deterministic for equal inputs.
	if code != EnvelopeCodeAt("ensemble", TypeTimeout, at) {
		t.Error("envelope code should be deterministic for equal inputs")
	}
}

func TestEnvelopeTypeOf(t *testing.T) {
	if EnvelopeTypeOf(CodeCircuitOpen) != TypeServiceUnavailable {
		t.Error("circuit open should surface as service_unavailable")
	}
	if EnvelopeTypeOf(CodeInternal) != TypeUnknown {
		t.Error("internal should surface as unknown")
	}
}
