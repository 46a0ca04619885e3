// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Chorus ensemble telemetry. gen_ai.* keys
// follow the OpenTelemetry GenAI conventions; chorus.* keys are ours.
const (
	// Request attributes
	AttrCorrelationID = "chorus.request.correlation_id"
	AttrUserTier      = "chorus.request.tier"
	AttrPromptLength  = "chorus.request.prompt_length"
	AttrFromCache     = "chorus.request.from_cache"

	// Role attributes
	AttrRole       = "chorus.role.name"
	AttrRoleStatus = "chorus.role.status"

	// Voting attributes
	AttrVotingWinner    = "chorus.voting.winner"
	AttrVotingConsensus = "chorus.voting.consensus"
	AttrVotingStrategy  = "chorus.voting.strategy"

	// Synthesis attributes
	AttrSynthesisStatus   = "chorus.synthesis.status"
	AttrSynthesisFallback = "chorus.synthesis.fallback"
	AttrSynthesisSources  = "chorus.synthesis.source_count"

	// Resilience attributes
	AttrBreakerName     = "chorus.breaker.name"
	AttrBreakerState    = "chorus.breaker.state"
	AttrRetryAttempt    = "chorus.retry.attempt"
	AttrFallbackDomain  = "chorus.fallback.domain"
	AttrDegradationName = "chorus.degradation.level"

	// Cache attributes
	AttrCacheTier = "chorus.cache.tier"
	AttrCacheHit  = "chorus.cache.hit"

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
)

// RequestAttributes returns the common attributes for a dispatch span.
func RequestAttributes(correlationID, tier string, promptLength int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCorrelationID, correlationID),
		attribute.String(AttrUserTier, tier),
		attribute.Int(AttrPromptLength, promptLength),
	}
}

// RoleAttributes returns attributes for a role call span.
func RoleAttributes(role, provider, model string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRole, role),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	return attrs
}

// RoleOutcomeAttributes returns attributes recorded when a role task
// finishes.
func RoleOutcomeAttributes(status string, tokensIn, tokensOut int, durationMs float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRoleStatus, status),
	}
	if tokensIn > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, tokensIn))
	}
	if tokensOut > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, tokensOut))
	}
	if durationMs > 0 {
		attrs = append(attrs, attribute.Float64(AttrLLMDurationMs, durationMs))
	}
	return attrs
}

// VotingAttributes returns attributes for the voting span.
func VotingAttributes(winner, consensus, strategy string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrVotingWinner, winner),
		attribute.String(AttrVotingConsensus, consensus),
	}
	if strategy != "" {
		attrs = append(attrs, attribute.String(AttrVotingStrategy, strategy))
	}
	return attrs
}

// SynthesisAttributes returns attributes for the synthesis span.
func SynthesisAttributes(status, fallback string, sources int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSynthesisStatus, status),
		attribute.Int(AttrSynthesisSources, sources),
	}
	if fallback != "" {
		attrs = append(attrs, attribute.String(AttrSynthesisFallback, fallback))
	}
	return attrs
}
