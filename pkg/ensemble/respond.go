// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package ensemble

import (
	"fmt"
	"time"

	"github.com/chorusml/chorus/pkg/errors"
)

// Audience selects how much detail an error message carries.
type Audience string

const (
	AudienceUser      Audience = "user"
	AudienceDeveloper Audience = "developer"
	AudienceAdmin     Audience = "admin"
)

// Severity labels for the error envelope.
const (
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// ErrorEnvelope is the caller-facing error shape. Only programmer
// errors and envelope serialization failures surface this way; partial
// ensemble failure still produces a normal result.
type ErrorEnvelope struct {
	Status   string         `json:"status"`
	Error    EnvelopeError  `json:"error"`
	Recovery RecoveryAdvice `json:"recovery"`
}

type EnvelopeError struct {
	Type          errors.EnvelopeType `json:"type"`
	Severity      string              `json:"severity"`
	Message       string              `json:"message"`
	Code          string              `json:"code"`
	Timestamp     time.Time           `json:"timestamp"`
	CorrelationID string              `json:"correlationId"`
}

type RecoveryAction struct {
	Type      string `json:"type"`
	Label     string `json:"label"`
	DelayMs   int64  `json:"delay,omitempty"`
	Automatic bool   `json:"automatic"`
}

type RecoveryAdvice struct {
	Suggestions           []string         `json:"suggestions"`
	Actions               []RecoveryAction `json:"actions"`
	EstimatedRecoveryTime int              `json:"estimatedRecoveryTime"`
}

// BuildEnvelope converts an error into the caller-facing envelope,
// with the message tuned for the audience.
func BuildEnvelope(err error, audience Audience, correlationID string) *ErrorEnvelope {
	classified := errors.Classify(err)
	typ := errors.EnvelopeTypeOf(classified.Code)

	return &ErrorEnvelope{
		Status: "error",
		Error: EnvelopeError{
			Type:          typ,
			Severity:      severityOf(classified),
			Message:       OptimizeMessage(classified, audience, correlationID),
			Code:          errors.EnvelopeCode("ensemble", typ),
			Timestamp:     time.Now().UTC(),
			CorrelationID: correlationID,
		},
		Recovery: adviceFor(typ, classified),
	}
}

// OptimizeMessage renders an error for the given audience. User
// messages are short and actionable; developer and admin messages add
// codes, correlation IDs and context.
func OptimizeMessage(err *errors.ChorusError, audience Audience, correlationID string) string {
	switch audience {
	case AudienceDeveloper:
		return fmt.Sprintf("[%s] %s (correlation_id=%s, retryable=%t)",
			err.Code, err.Message, correlationID, err.Retryable)
	case AudienceAdmin:
		msg := fmt.Sprintf("[%s] %s (correlation_id=%s, operational=%t, retryable=%t)",
			err.Code, err.Message, correlationID, err.Operational, err.Retryable)
		for k, v := range err.Context {
			msg += fmt.Sprintf(" %s=%v", k, v)
		}
		return msg
	default:
		return userMessage(errors.EnvelopeTypeOf(err.Code))
	}
}

func userMessage(typ errors.EnvelopeType) string {
	switch typ {
	case errors.TypeRateLimit:
		return "We're handling a lot of requests right now. Please try again in a moment."
	case errors.TypeTimeout:
		return "That took longer than expected. Please try again."
	case errors.TypeServerError, errors.TypeServiceUnavailable:
		return "Something went wrong on our side. Please try again shortly."
	case errors.TypeNetworkError:
		return "We're having trouble reaching our AI providers. Please try again."
	case errors.TypeAuthError:
		return "There's a configuration problem with this service. Our team has been notified."
	case errors.TypeValidationError:
		return "Your request couldn't be processed. Please check it and try again."
	case errors.TypeQuotaExceeded:
		return "This service has reached its usage limit. Please try again later."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

func severityOf(err *errors.ChorusError) string {
	switch {
	case !err.Operational:
		return SeverityCritical
	case err.Retryable:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// adviceFor maps an envelope type to recovery suggestions and actions.
func adviceFor(typ errors.EnvelopeType, classified *errors.ChorusError) RecoveryAdvice {
	retryDelay := int64(5000)
	if wait, ok := errors.RetryAfter(classified); ok {
		retryDelay = wait.Milliseconds()
	}

	switch typ {
	case errors.TypeRateLimit:
		return RecoveryAdvice{
			Suggestions: []string{
				"Wait a few seconds before retrying",
				"Reduce the frequency of requests",
			},
			Actions: []RecoveryAction{
				{Type: "retry", Label: "Retry automatically", DelayMs: retryDelay, Automatic: true},
			},
			EstimatedRecoveryTime: 30,
		}
	case errors.TypeTimeout:
		return RecoveryAdvice{
			Suggestions: []string{
				"Try again with a shorter prompt",
				"Retry the request",
			},
			Actions: []RecoveryAction{
				{Type: "retry", Label: "Retry now", Automatic: false},
			},
			EstimatedRecoveryTime: 10,
		}
	case errors.TypeServerError, errors.TypeServiceUnavailable, errors.TypeNetworkError:
		return RecoveryAdvice{
			Suggestions: []string{
				"Retry the request",
				"The system is rerouting around the failing provider",
			},
			Actions: []RecoveryAction{
				{Type: "retry", Label: "Retry automatically", DelayMs: retryDelay, Automatic: true},
			},
			EstimatedRecoveryTime: 60,
		}
	case errors.TypeAuthError, errors.TypeQuotaExceeded:
		return RecoveryAdvice{
			Suggestions: []string{
				"Contact the service administrator",
			},
			Actions: []RecoveryAction{
				{Type: "alert", Label: "Notify administrator", Automatic: true},
			},
			EstimatedRecoveryTime: 3600,
		}
	case errors.TypeValidationError:
		return RecoveryAdvice{
			Suggestions: []string{
				"Check the request parameters and retry",
			},
			Actions: []RecoveryAction{
				{Type: "edit", Label: "Fix request", Automatic: false},
			},
			EstimatedRecoveryTime: 0,
		}
	default:
		return RecoveryAdvice{
			Suggestions: []string{
				"Retry the request",
			},
			Actions: []RecoveryAction{
				{Type: "retry", Label: "Retry now", Automatic: false},
			},
			EstimatedRecoveryTime: 60,
		}
	}
}
