// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package synthesis produces the single final answer of an ensemble
// run. The enhanced path asks a synthesizer model to combine the role
// outputs; when that path is restricted, unavailable, or failing, a
// ranked ladder of deterministic strategies takes over, ending in a
// fixed emergency payload so the caller always receives an answer.
package synthesis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/chorusml/chorus/pkg/cache"
	"github.com/chorusml/chorus/pkg/core"
	"github.com/chorusml/chorus/pkg/errors"
	"github.com/chorusml/chorus/pkg/llm"
	"github.com/chorusml/chorus/pkg/resilience"
)

// Strategy names, in default ladder order.
const (
	StrategyEnhanced       = "enhanced_synthesis"
	StrategyBestResponse   = "best_response_selection"
	StrategyConcatenation  = "simple_concatenation"
	StrategyTemplate       = "template_based"
	StrategyCachedResponse = "cached_response"
)

// EmergencyContent is the fixed payload returned when every synthesis
// path is exhausted.
const EmergencyContent = "We're sorry - we couldn't produce a full answer right now. " +
	"Our models are temporarily unavailable. Please try again in a moment."

// lastGoodKeyPayload keys the most recent successful synthesis per
// prompt shape, feeding the cached_response rung of the ladder.
type lastGoodKeyPayload struct {
	Kind string `json:"kind"`
}

// CatalogAlternatives is the default synthesis fallback catalog, ready
// to register with a fallback manager. BaselineQuality caps the
// confidence of answers produced through each rung.
func CatalogAlternatives() []resilience.Alternative {
	return []resilience.Alternative{
		{Name: StrategyBestResponse, Priority: 1, BaselineQuality: 0.85},
		{Name: StrategyConcatenation, Priority: 2, BaselineQuality: 0.7},
		{Name: StrategyTemplate, Priority: 3, BaselineQuality: 0.6},
		{Name: StrategyCachedResponse, Priority: 4, BaselineQuality: 0.5},
	}
}

// enhancedQualityCap bounds confidence on the enhanced path.
const enhancedQualityCap = 0.95

// Engine synthesizes a final answer from role outputs.
type Engine struct {
	synthesizer llm.Provider
	fallbacks   *resilience.Manager
	store       *cache.Cache
	restricted  func(feature string) bool

	synthesizerModel    string
	synthesizerProvider string
}

// Option configures the Engine.
type Option func(*Engine)

// WithSynthesizer installs the model that drives the enhanced path.
// Without one the engine starts at best_response_selection.
func WithSynthesizer(p llm.Provider, provider, model string) Option {
	return func(e *Engine) {
		e.synthesizer = p
		e.synthesizerProvider = provider
		e.synthesizerModel = model
	}
}

// WithCache enables the cached_response rung of the ladder.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) {
		e.store = c
	}
}

// WithRestriction wires the degradation manager's feature gate.
func WithRestriction(fn func(feature string) bool) Option {
	return func(e *Engine) {
		e.restricted = fn
	}
}

// NewEngine creates a synthesis engine. The fallback manager orders
// the ladder; nil falls back to the built-in catalog order.
func NewEngine(fallbacks *resilience.Manager, opts ...Option) *Engine {
	e := &Engine{fallbacks: fallbacks}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Synthesize produces the final answer. It never returns an error for
// degraded inputs: zero fulfilled outputs yield the emergency payload
// with status emergency_fallback.
func (e *Engine) Synthesize(ctx context.Context, prompt string, outputs []core.RoleOutput, vote *core.VotingResult) *core.SynthesisResult {
	fulfilled := core.FulfilledOutputs(outputs)
	if len(fulfilled) == 0 {
		return emergencyResult()
	}

	if result := e.enhanced(ctx, prompt, fulfilled, vote); result != nil {
		e.rememberLastGood(result)
		return result
	}

	for _, name := range e.ladder() {
		result := e.runStrategy(name, fulfilled, vote)
		if e.fallbacks != nil {
			e.fallbacks.RecordOutcome(resilience.DomainSynthesis, name, result != nil)
		}
		if result != nil {
			e.rememberLastGood(result)
			return result
		}
	}
	return emergencyResult()
}

// enhanced runs the synthesizer model over the fulfilled outputs.
// Returns nil when the path is restricted, unconfigured, or fails.
func (e *Engine) enhanced(ctx context.Context, prompt string, fulfilled []core.RoleOutput, vote *core.VotingResult) *core.SynthesisResult {
	if e.synthesizer == nil {
		return nil
	}
	if e.restricted != nil && e.restricted(StrategyEnhanced) {
		return nil
	}

	resp, err := e.synthesizer.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: synthesisInstruction},
			{Role: llm.RoleUser, Content: buildSynthesisPrompt(prompt, fulfilled)},
		},
	})
	if err != nil || resp.Content == "" {
		return nil
	}

	confidence := enhancedQualityCap
	if vote != nil {
		confidence = math.Min(vote.Confidence+0.2, enhancedQualityCap)
	}
	return &core.SynthesisResult{
		Content:     resp.Content,
		Model:       e.synthesizerModel,
		Provider:    e.synthesizerProvider,
		Status:      core.SynthesisOK,
		Confidence:  confidence,
		SourceCount: len(fulfilled),
	}
}

const synthesisInstruction = "You are a synthesis assistant. Combine the candidate " +
	"answers into one clear, accurate response. Prefer points the candidates agree on."

func buildSynthesisPrompt(prompt string, fulfilled []core.RoleOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nCandidate answers:\n", prompt)
	for i, out := range fulfilled {
		fmt.Fprintf(&b, "\n[%d] (%s, confidence %.2f)\n%s\n", i+1, out.Role, out.Confidence, out.Content)
	}
	return b.String()
}

// ladder returns the degraded strategy order, consulting the fallback
// manager when present so unhealthy or breaker-guarded rungs are
// skipped.
func (e *Engine) ladder() []string {
	if e.fallbacks != nil {
		if candidates := e.fallbacks.Candidates(resilience.DomainSynthesis); len(candidates) > 0 {
			names := make([]string, 0, len(candidates))
			for _, alt := range candidates {
				names = append(names, alt.Name)
			}
			return names
		}
	}
	return []string{StrategyBestResponse, StrategyConcatenation, StrategyTemplate, StrategyCachedResponse}
}

// runStrategy executes one ladder rung. A nil result means the rung
// could not produce an answer from these inputs.
func (e *Engine) runStrategy(name string, fulfilled []core.RoleOutput, vote *core.VotingResult) *core.SynthesisResult {
	switch name {
	case StrategyBestResponse:
		return e.bestResponse(fulfilled, vote)
	case StrategyConcatenation:
		return e.concatenation(fulfilled)
	case StrategyTemplate:
		return e.template(fulfilled, vote)
	case StrategyCachedResponse:
		return e.cachedResponse()
	default:
		return nil
	}
}

// bestResponse returns the voting winner's content verbatim.
func (e *Engine) bestResponse(fulfilled []core.RoleOutput, vote *core.VotingResult) *core.SynthesisResult {
	chosen := fulfilled[0]
	if vote != nil {
		for _, out := range fulfilled {
			if out.Role == vote.Winner {
				chosen = out
				break
			}
		}
	}
	confidence := chosen.Confidence
	if vote != nil && vote.Winner == chosen.Role {
		confidence = vote.Confidence
	}
	return &core.SynthesisResult{
		Content:      chosen.Content,
		Model:        chosen.Model,
		Provider:     chosen.Provider,
		Status:       core.SynthesisFallback,
		Confidence:   capQuality(confidence, 0.85),
		FallbackUsed: StrategyBestResponse,
		SourceCount:  1,
	}
}

// concatenation joins every fulfilled answer under role headings.
func (e *Engine) concatenation(fulfilled []core.RoleOutput) *core.SynthesisResult {
	sorted := make([]core.RoleOutput, len(fulfilled))
	copy(sorted, fulfilled)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Role < sorted[j].Role })

	var b strings.Builder
	for i, out := range sorted {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "From %s:\n%s", out.Role, out.Content)
	}
	return &core.SynthesisResult{
		Content:      b.String(),
		Status:       core.SynthesisFallback,
		Confidence:   capQuality(0.7, 0.7),
		FallbackUsed: StrategyConcatenation,
		SourceCount:  len(sorted),
	}
}

// template wraps the best available answer in a fixed disclaimer.
func (e *Engine) template(fulfilled []core.RoleOutput, vote *core.VotingResult) *core.SynthesisResult {
	chosen := fulfilled[0]
	if vote != nil {
		for _, out := range fulfilled {
			if out.Role == vote.Winner {
				chosen = out
				break
			}
		}
	}
	content := fmt.Sprintf(
		"Based on the available model responses, here is the best answer we can offer:\n\n%s\n\n"+
			"Note: this answer was produced under degraded conditions and may be incomplete.",
		chosen.Content)
	return &core.SynthesisResult{
		Content:      content,
		Status:       core.SynthesisFallback,
		Confidence:   capQuality(0.6, 0.6),
		FallbackUsed: StrategyTemplate,
		SourceCount:  1,
	}
}

// cachedResponse replays the most recent successful synthesis, when
// one is cached.
func (e *Engine) cachedResponse() *core.SynthesisResult {
	if e.store == nil {
		return nil
	}
	key, err := cache.Key(cache.PrefixEnsemble, lastGoodKeyPayload{Kind: "last_good_synthesis"})
	if err != nil {
		return nil
	}
	var saved core.SynthesisResult
	hit, err := e.store.Get(key, &saved)
	if err != nil || !hit || saved.Content == "" {
		return nil
	}
	return &core.SynthesisResult{
		Content:      saved.Content,
		Model:        saved.Model,
		Provider:     saved.Provider,
		Status:       core.SynthesisFallback,
		Confidence:   capQuality(saved.Confidence, 0.5),
		FallbackUsed: StrategyCachedResponse,
		SourceCount:  0,
	}
}

// rememberLastGood stores a successful synthesis for the
// cached_response rung. Best effort; failures are ignored.
func (e *Engine) rememberLastGood(result *core.SynthesisResult) {
	if e.store == nil || result.Status == core.SynthesisEmergencyFallback {
		return
	}
	key, err := cache.Key(cache.PrefixEnsemble, lastGoodKeyPayload{Kind: "last_good_synthesis"})
	if err != nil {
		return
	}
	_ = e.store.Set(key, result, 10*time.Minute)
}

// capQuality bounds confidence by the rung's baseline quality.
func capQuality(confidence, baseline float64) float64 {
	if confidence > baseline {
		return baseline
	}
	if confidence < 0 {
		return 0
	}
	return confidence
}

func emergencyResult() *core.SynthesisResult {
	return &core.SynthesisResult{
		Content:      EmergencyContent,
		Status:       core.SynthesisEmergencyFallback,
		Confidence:   0.1,
		FallbackUsed: "emergency",
		SourceCount:  0,
	}
}

// Err wraps a synthesis failure for callers that need a typed error.
func Err(msg string, cause error) error {
	return errors.New(errors.CodeSynthesisError, msg, cause)
}
