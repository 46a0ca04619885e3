// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"strconv"
	"strings"
	"time"
)

// EnvelopeType is the language-neutral error type surfaced to callers.
type EnvelopeType string

const (
	TypeRateLimit          EnvelopeType = "rate_limit"
	TypeTimeout            EnvelopeType = "timeout"
	TypeServerError        EnvelopeType = "server_error"
	TypeNetworkError       EnvelopeType = "network_error"
	TypeAuthError          EnvelopeType = "auth_error"
	TypeValidationError    EnvelopeType = "validation_error"
	TypeQuotaExceeded      EnvelopeType = "quota_exceeded"
	TypeServiceUnavailable EnvelopeType = "service_unavailable"
	TypeUnknown            EnvelopeType = "unknown"
)

// EnvelopeTypeOf maps an internal error code to its envelope type.
func EnvelopeTypeOf(code Code) EnvelopeType {
	switch code {
	case CodeRateLimited:
		return TypeRateLimit
	case CodeTimeout:
		return TypeTimeout
	case CodeServerError, CodeModelFailure, CodeSynthesisError, CodeVotingError:
		return TypeServerError
	case CodeNetworkError:
		return TypeNetworkError
	case CodeAuthError:
		return TypeAuthError
	case CodeValidationError:
		return TypeValidationError
	case CodeQuotaExceeded:
		return TypeQuotaExceeded
	case CodeCircuitOpen:
		return TypeServiceUnavailable
	default:
		return TypeUnknown
	}
}

// EnvelopeCode builds a caller-facing error code of the form
// <SVC3>-<TYPE3>-<base36 timestamp>, e.g. "ENS-TIM-ky2ttvlc".
func EnvelopeCode(service string, typ EnvelopeType) string {
	return EnvelopeCodeAt(service, typ, time.Now())
}

// EnvelopeCodeAt is EnvelopeCode with an explicit timestamp, for tests.
func EnvelopeCodeAt(service string, typ EnvelopeType, at time.Time) string {
	return abbrev(service) + "-" + abbrev(string(typ)) + "-" +
		strconv.FormatInt(at.UnixMilli(), 36)
}

func abbrev(s string) string {
	s = strings.ToUpper(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			return r
		}
		return -1
	}, s))
	if len(s) < 3 {
		s += strings.Repeat("X", 3-len(s))
	}
	return s[:3]
}
