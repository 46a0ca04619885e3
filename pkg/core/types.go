// SPDX-License-Identifier: Apache-2.0
// Package core defines the shared data model of the Chorus ensemble:
// requests, role outputs, voting and synthesis results.
package core

import (
	"time"

	"github.com/chorusml/chorus/pkg/errors"
)

// Tier is a user subscription tier controlling which roles run.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// MaxPromptChars is the longest prompt the ensemble accepts.
const MaxPromptChars = 25000

// Request is the single logical ingress of the ensemble.
type Request struct {
	Prompt        string `json:"prompt"`
	UserID        string `json:"userId"`
	SessionID     string `json:"sessionId"`
	Tier          Tier   `json:"tier"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Validate checks request boundaries. CorrelationID may be empty here;
// the dispatcher populates it at entry.
func (r Request) Validate() error {
	if len(r.Prompt) == 0 {
		return errors.New(errors.CodeValidationError, "prompt must not be empty", nil)
	}
	if len(r.Prompt) > MaxPromptChars {
		return errors.New(errors.CodeValidationError, "prompt exceeds maximum length", nil).
			WithContext("length", len(r.Prompt)).
			WithContext("max", MaxPromptChars)
	}
	if r.UserID == "" {
		return errors.New(errors.CodeValidationError, "userId must not be empty", nil)
	}
	if r.SessionID == "" {
		return errors.New(errors.CodeValidationError, "sessionId must not be empty", nil)
	}
	if r.Tier != TierFree && r.Tier != TierPremium {
		return errors.New(errors.CodeValidationError, "tier must be free or premium", nil).
			WithContext("tier", string(r.Tier))
	}
	return nil
}

// RoleStatus is the terminal status of a role task.
type RoleStatus string

const (
	StatusFulfilled RoleStatus = "fulfilled"
	StatusFailed    RoleStatus = "failed"
)

// RoleOutput is the outcome of one model queried in the ensemble.
// Invariant: Status == fulfilled implies Content is non-empty.
type RoleOutput struct {
	Role            string     `json:"role"`
	Provider        string     `json:"provider"`
	Model           string     `json:"model"`
	Status          RoleStatus `json:"status"`
	Content         string     `json:"content,omitempty"`
	LatencyMs       int64      `json:"latencyMs"`
	TokensIn        int        `json:"tokensIn"`
	TokensOut       int        `json:"tokensOut"`
	Confidence      float64    `json:"confidence"`
	ConfidenceLevel string     `json:"confidenceLevel"`
	Error           string     `json:"error,omitempty"`
}

// Fulfilled reports whether the role produced usable content.
func (o RoleOutput) Fulfilled() bool {
	return o.Status == StatusFulfilled && o.Content != ""
}

// ConfidenceLabel maps a confidence score to its level label.
func ConfidenceLabel(score float64) string {
	switch {
	case score >= 0.8:
		return "very_high"
	case score >= 0.6:
		return "high"
	case score >= 0.4:
		return "medium"
	case score >= 0.2:
		return "low"
	default:
		return "very_low"
	}
}

// Consensus labels for voting results.
const (
	ConsensusHigh           = "high"
	ConsensusModerate       = "moderate"
	ConsensusLow            = "low"
	ConsensusSimpleMajority = "simple_majority"
	ConsensusFallback       = "fallback"
)

// VotingResult is the weighted aggregation across role outputs.
// Invariant: weights sum to 1 within 1e-6 and Winner is a weight key.
type VotingResult struct {
	Winner     string             `json:"winner"`
	Confidence float64            `json:"confidence"`
	Consensus  string             `json:"consensus"`
	Weights    map[string]float64 `json:"weights"`
	Strategy   string             `json:"strategy,omitempty"`
}

// SynthesisStatus describes which synthesis path produced the answer.
type SynthesisStatus string

const (
	SynthesisOK                SynthesisStatus = "ok"
	SynthesisFallback          SynthesisStatus = "fallback"
	SynthesisEmergencyFallback SynthesisStatus = "emergency_fallback"
)

// SynthesisResult is the single answer produced from role outputs.
// Invariant: SourceCount never exceeds the fulfilled role count.
type SynthesisResult struct {
	Content      string          `json:"content"`
	Model        string          `json:"model,omitempty"`
	Provider     string          `json:"provider,omitempty"`
	Status       SynthesisStatus `json:"status"`
	Confidence   float64         `json:"confidence"`
	FallbackUsed string          `json:"fallbackUsed,omitempty"`
	SourceCount  int             `json:"sourceCount"`
}

// EnsembleResult is the egress of the core.
type EnsembleResult struct {
	CorrelationID    string           `json:"correlationId"`
	RoleOutputs      []RoleOutput     `json:"roleOutputs"`
	Voting           *VotingResult    `json:"voting"`
	Synthesis        *SynthesisResult `json:"synthesis"`
	FromCache        bool             `json:"fromCache"`
	DegradationLevel string           `json:"degradationLevel"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// FulfilledOutputs filters the fulfilled role outputs.
func FulfilledOutputs(outputs []RoleOutput) []RoleOutput {
	out := make([]RoleOutput, 0, len(outputs))
	for _, o := range outputs {
		if o.Fulfilled() {
			out = append(out, o)
		}
	}
	return out
}
