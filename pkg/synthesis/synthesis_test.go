// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package synthesis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chorusml/chorus/pkg/cache"
	"github.com/chorusml/chorus/pkg/core"
	"github.com/chorusml/chorus/pkg/errors"
	"github.com/chorusml/chorus/pkg/llm"
	"github.com/chorusml/chorus/pkg/resilience"
)

func fulfilled(role, content string, confidence float64) core.RoleOutput {
	return core.RoleOutput{
		Role:       role,
		Provider:   role,
		Model:      role + "-model",
		Status:     core.StatusFulfilled,
		Content:    content,
		Confidence: confidence,
	}
}

func vote(winner string, confidence float64) *core.VotingResult {
	return &core.VotingResult{
		Winner:     winner,
		Confidence: confidence,
		Consensus:  core.ConsensusHigh,
		Weights:    map[string]float64{winner: 1.0},
	}
}

func TestEnhancedPathStatusOK(t *testing.T) {
	synth := &llm.MockProvider{Response: "Combined: the answer is 4."}
	e := NewEngine(nil, WithSynthesizer(synth, "openai", "gpt-4o"))

	outputs := []core.RoleOutput{
		fulfilled("claude", "4", 0.9),
		fulfilled("gemini", "Four.", 0.8),
	}
	result := e.Synthesize(context.Background(), "What is 2+2?", outputs, vote("claude", 0.6))

	if result.Status != core.SynthesisOK {
		t.Errorf("status = %q, want ok", result.Status)
	}
	if result.Content != "Combined: the answer is 4." {
		t.Errorf("unexpected content %q", result.Content)
	}
	if result.SourceCount != 2 {
		t.Errorf("sourceCount = %d, want 2", result.SourceCount)
	}
	if result.Provider != "openai" || result.Model != "gpt-4o" {
		t.Errorf("provenance = %s/%s", result.Provider, result.Model)
	}
	if result.Confidence > 0.95 {
		t.Errorf("confidence %f exceeds enhanced cap", result.Confidence)
	}
}

func TestSynthesizerFailureFallsToBestResponse(t *testing.T) {
	synth := &llm.MockProvider{Err: errors.New(errors.CodeServerError, "upstream 503", nil)}
	e := NewEngine(nil, WithSynthesizer(synth, "openai", "gpt-4o"))

	outputs := []core.RoleOutput{
		fulfilled("claude", "The winner's answer.", 0.9),
		fulfilled("gemini", "Another answer.", 0.7),
	}
	result := e.Synthesize(context.Background(), "q", outputs, vote("claude", 0.65))

	if result.Status != core.SynthesisFallback {
		t.Errorf("status = %q, want fallback", result.Status)
	}
	if result.FallbackUsed != StrategyBestResponse {
		t.Errorf("fallbackUsed = %q", result.FallbackUsed)
	}
	if result.Content != "The winner's answer." {
		t.Errorf("content = %q, want winner content", result.Content)
	}
	if result.SourceCount != 1 {
		t.Errorf("sourceCount = %d, want 1", result.SourceCount)
	}
}

func TestRestrictionSkipsEnhancedPath(t *testing.T) {
	synth := &llm.MockProvider{Response: "should not be used"}
	restricted := func(feature string) bool { return feature == StrategyEnhanced }
	e := NewEngine(nil, WithSynthesizer(synth, "openai", "gpt-4o"), WithRestriction(restricted))

	outputs := []core.RoleOutput{fulfilled("claude", "Direct answer.", 0.9)}
	result := e.Synthesize(context.Background(), "q", outputs, vote("claude", 0.9))

	if result.Status != core.SynthesisFallback {
		t.Errorf("status = %q, want fallback while restricted", result.Status)
	}
	if result.FallbackUsed != StrategyBestResponse {
		t.Errorf("fallbackUsed = %q, want best_response_selection", result.FallbackUsed)
	}
}

func TestNoFulfilledYieldsEmergency(t *testing.T) {
	e := NewEngine(nil)
	result := e.Synthesize(context.Background(), "q", []core.RoleOutput{
		{Role: "claude", Status: core.StatusFailed, Error: "503"},
		{Role: "gemini", Status: core.StatusFailed, Error: "503"},
	}, nil)

	if result.Status != core.SynthesisEmergencyFallback {
		t.Errorf("status = %q, want emergency_fallback", result.Status)
	}
	if result.SourceCount != 0 {
		t.Errorf("sourceCount = %d, want 0", result.SourceCount)
	}
	if result.Content == "" {
		t.Error("emergency payload must carry content")
	}
}

func TestConcatenationSortsAndCountsSources(t *testing.T) {
	e := NewEngine(nil)
	outputs := []core.RoleOutput{
		fulfilled("gemini", "Gemini says hi.", 0.8),
		fulfilled("claude", "Claude says hi.", 0.8),
	}
	result := e.concatenation(outputs)

	if result.SourceCount != 2 {
		t.Errorf("sourceCount = %d, want 2", result.SourceCount)
	}
	claudeIdx := strings.Index(result.Content, "From claude:")
	geminiIdx := strings.Index(result.Content, "From gemini:")
	if claudeIdx < 0 || geminiIdx < 0 || claudeIdx > geminiIdx {
		t.Errorf("concatenation should list roles in sorted order:\n%s", result.Content)
	}
	if result.Confidence > 0.7 {
		t.Errorf("confidence %f exceeds rung baseline", result.Confidence)
	}
}

func TestSourceCountNeverExceedsFulfilled(t *testing.T) {
	synth := &llm.MockProvider{Response: "combined"}
	e := NewEngine(nil, WithSynthesizer(synth, "openai", "gpt-4o"))
	outputs := []core.RoleOutput{
		fulfilled("claude", "a.", 0.8),
		{Role: "gemini", Status: core.StatusFailed, Error: "timeout"},
		{Role: "xai", Status: core.StatusFailed, Error: "timeout"},
	}
	result := e.Synthesize(context.Background(), "q", outputs, vote("claude", 0.9))
	if result.SourceCount > 1 {
		t.Errorf("sourceCount = %d exceeds fulfilled count 1", result.SourceCount)
	}
}

func TestCachedResponseRung(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.JanitorInterval = time.Hour
	store := cache.New(cfg)
	defer store.Close()

	mgr := resilience.NewManager(nil)
	mgr.Register(resilience.DomainSynthesis, CatalogAlternatives()...)

	e := NewEngine(mgr, WithCache(store))

	// First run succeeds via best_response and seeds the cache.
	good := e.Synthesize(context.Background(), "q", []core.RoleOutput{
		fulfilled("claude", "A reusable good answer.", 0.9),
	}, vote("claude", 0.8))
	if good.Status != core.SynthesisFallback {
		t.Fatalf("seed run status %q", good.Status)
	}

	// A later replay from the cache rung carries the saved content.
	replay := e.cachedResponse()
	if replay == nil {
		t.Fatal("expected cached response")
	}
	if replay.Content != good.Content {
		t.Errorf("replayed %q, want %q", replay.Content, good.Content)
	}
	if replay.Confidence > 0.5 {
		t.Errorf("cached rung confidence %f exceeds baseline", replay.Confidence)
	}
	if replay.FallbackUsed != StrategyCachedResponse {
		t.Errorf("fallbackUsed = %q", replay.FallbackUsed)
	}
}

func TestTemplateWrapsWinner(t *testing.T) {
	e := NewEngine(nil)
	result := e.template([]core.RoleOutput{
		fulfilled("claude", "Core answer.", 0.9),
	}, vote("claude", 0.9))
	if !strings.Contains(result.Content, "Core answer.") {
		t.Errorf("template lost the source answer: %q", result.Content)
	}
	if result.Confidence > 0.6 {
		t.Errorf("template confidence %f exceeds baseline", result.Confidence)
	}
}
