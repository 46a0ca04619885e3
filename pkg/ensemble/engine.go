// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package ensemble implements the dispatcher: parallel fan-out to the
// enabled roles, result collation under deadlines, voting, synthesis,
// and the response cache. One Engine instance serves many concurrent
// requests.
package ensemble

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/chorusml/chorus/pkg/cache"
	"github.com/chorusml/chorus/pkg/core"
	"github.com/chorusml/chorus/pkg/degradation"
	"github.com/chorusml/chorus/pkg/errors"
	"github.com/chorusml/chorus/pkg/health"
	"github.com/chorusml/chorus/pkg/llm"
	"github.com/chorusml/chorus/pkg/resilience"
	"github.com/chorusml/chorus/pkg/synthesis"
	"github.com/chorusml/chorus/pkg/telemetry"
	"github.com/chorusml/chorus/pkg/voting"
)

// Params wires the engine's collaborators. Roster, Breakers, Fallbacks
// and Tracker are required; the rest may be nil for reduced operation.
type Params struct {
	Roster      *Roster
	Cache       *cache.Cache
	Breakers    *resilience.Registry
	Fallbacks   *resilience.Manager
	Tracker     *health.Tracker
	Degradation *degradation.Manager
	Voter       *voting.Engine
	Synthesizer *synthesis.Engine
	Metrics     *telemetry.EnsembleMetrics
	Logger      *slog.Logger

	Retry resilience.Policy

	// Deadline bounds the whole request; RoleDeadline bounds each role
	// task. A zero deadline expires immediately: every role reports
	// failed(timeout) and synthesis falls to the emergency payload.
	Deadline     time.Duration
	RoleDeadline time.Duration
	CacheTTL     time.Duration
}

// Engine is the ensemble dispatcher.
type Engine struct {
	roster      *Roster
	cache       *cache.Cache
	breakers    *resilience.Registry
	fallbacks   *resilience.Manager
	tracker     *health.Tracker
	degradation *degradation.Manager
	voter       *voting.Engine
	synth       *synthesis.Engine
	metrics     *telemetry.EnsembleMetrics
	logger      *slog.Logger
	tracer      trace.Tracer

	retry        resilience.Policy
	deadline     time.Duration
	roleDeadline time.Duration
	cacheTTL     time.Duration
}

// cacheKeyPayload is the canonical payload behind the ensemble cache
// key. Field order is fixed; see cache.Key.
type cacheKeyPayload struct {
	Prompt string    `json:"prompt"`
	UserID string    `json:"userId"`
	Tier   core.Tier `json:"tier"`
}

// NewEngine creates a dispatcher and registers each role's provider
// catalog with the fallback manager.
func NewEngine(p Params) *Engine {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	voter := p.Voter
	if voter == nil {
		voter = voting.NewEngine(p.Fallbacks)
	}
	synth := p.Synthesizer
	if synth == nil {
		synth = synthesis.NewEngine(p.Fallbacks)
	}
	e := &Engine{
		roster:       p.Roster,
		cache:        p.Cache,
		breakers:     p.Breakers,
		fallbacks:    p.Fallbacks,
		tracker:      p.Tracker,
		degradation:  p.Degradation,
		voter:        voter,
		synth:        synth,
		metrics:      p.Metrics,
		logger:       logger,
		tracer:       otel.Tracer("chorus/ensemble"),
		retry:        p.Retry,
		deadline:     p.Deadline,
		roleDeadline: p.RoleDeadline,
		cacheTTL:     p.CacheTTL,
	}
	if e.retry.MaxAttempts == 0 {
		e.retry = resilience.DefaultPolicy()
	}
	if e.cacheTTL == 0 {
		e.cacheTTL = 5 * time.Minute
	}

	if e.fallbacks != nil {
		for _, b := range e.roster.Catalog() {
			alts := append([]resilience.Alternative{b.primaryAlternative()}, b.Alternates...)
			e.fallbacks.Register(resilience.ModelDomain(b.Role), alts...)
		}
		if e.cache != nil {
			e.fallbacks.Register(resilience.DomainStorage, cache.CatalogAlternatives()...)
		}
	}
	if e.tracker != nil {
		for _, b := range e.roster.Catalog() {
			e.tracker.Declare(b.Provider, b.providerCriticality())
		}
	}
	return e
}

// Process runs one ensemble request end to end. Partial failure is
// normal: the result is well formed even when every role fails. Only
// validation and internal envelope failures return an error.
func (e *Engine) Process(ctx context.Context, req core.Request) (*core.EnsembleResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	ctx = telemetry.WithCorrelationID(ctx, req.CorrelationID)

	ctx, span := e.tracer.Start(ctx, "ensemble.process",
		trace.WithAttributes(telemetry.RequestAttributes(req.CorrelationID, string(req.Tier), len(req.Prompt))...))
	defer span.End()

	start := time.Now()
	log := e.logger.With(slog.String("correlation_id", req.CorrelationID))

	key, cached := e.lookupCache(ctx, req)
	if cached != nil {
		cached.CorrelationID = req.CorrelationID
		cached.FromCache = true
		cached.DegradationLevel = e.level()
		e.metrics.RecordRequest(ctx, string(req.Tier), true, time.Since(start))
		log.InfoContext(ctx, "ensemble served from cache")
		return cached, nil
	}

	bindings := e.roster.RolesFor(req.Tier)
	if len(bindings) == 0 {
		return nil, errors.New(errors.CodeValidationError, "no roles enabled for tier", nil).
			WithContext("tier", string(req.Tier))
	}

	outputs := e.fanOut(ctx, req, bindings)

	// Fold this request's provider outcomes into the capability level
	// so voting and synthesis see new restrictions on the same request.
	if e.degradation != nil {
		e.degradation.Assess()
	}

	vote := e.vote(ctx, outputs)
	synth := e.synthesize(ctx, req.Prompt, outputs, vote)

	result := &core.EnsembleResult{
		CorrelationID:    req.CorrelationID,
		RoleOutputs:      outputs,
		Voting:           vote,
		Synthesis:        synth,
		FromCache:        false,
		DegradationLevel: e.level(),
		CreatedAt:        time.Now().UTC(),
	}

	e.storeCache(ctx, key, result)
	e.metrics.RecordRequest(ctx, string(req.Tier), false, time.Since(start))
	e.recordGauges(ctx)
	log.InfoContext(ctx, "ensemble complete",
		slog.Int("fulfilled", len(core.FulfilledOutputs(outputs))),
		slog.Int("roles", len(outputs)),
		slog.String("synthesis_status", string(synth.Status)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// fanOut launches one task per binding and collates the outputs,
// filling failed(timeout) placeholders for tasks that miss the
// overall deadline. Outputs come back sorted by role name.
func (e *Engine) fanOut(ctx context.Context, req core.Request, bindings []Binding) []core.RoleOutput {
	dispatchCtx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	results := make(chan core.RoleOutput, len(bindings))
	for _, b := range bindings {
		go func(b Binding) {
			roleCtx, roleCancel := context.WithTimeout(dispatchCtx, e.roleDeadline)
			defer roleCancel()
			results <- e.runRole(roleCtx, req, b)
		}(b)
	}

	collected := make(map[string]core.RoleOutput, len(bindings))
collect:
	for range bindings {
		select {
		case out := <-results:
			collected[out.Role] = out
		case <-dispatchCtx.Done():
			break collect
		}
	}

	outputs := make([]core.RoleOutput, 0, len(bindings))
	for _, b := range bindings {
		if out, ok := collected[b.Role]; ok {
			outputs = append(outputs, out)
			continue
		}
		outputs = append(outputs, timeoutOutput(b))
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Role < outputs[j].Role })

	for _, out := range outputs {
		e.metrics.RecordRoleOutcome(ctx, out.Role, string(out.Status))
	}
	return outputs
}

// runRole executes one role task: candidate providers in fallback
// order, each behind its breaker and the retry policy.
func (e *Engine) runRole(ctx context.Context, req core.Request, b Binding) core.RoleOutput {
	ctx, span := e.tracer.Start(ctx, "ensemble.role",
		trace.WithAttributes(telemetry.RoleAttributes(b.Role, b.Provider, b.Model)...))
	defer span.End()

	if ctx.Err() != nil {
		return timeoutOutput(b)
	}

	domain := resilience.ModelDomain(b.Role)
	candidates := e.candidates(domain, b)

	var lastErr error
	for _, alt := range candidates {
		provider, ok := e.roster.Provider(alt.Provider)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		var resp *llm.ChatResponse
		err := e.retry.Do(ctx, func(ctx context.Context) error {
			return e.breakers.Get(alt.Provider).Call(ctx, func(ctx context.Context) error {
				r, err := provider.Chat(ctx, llm.ChatRequest{
					Model: alt.Model,
					Messages: []llm.Message{
						{Role: llm.RoleUser, Content: req.Prompt},
					},
				})
				if err != nil {
					return err
				}
				resp = r
				return nil
			})
		})
		latency := time.Since(start)
		if e.tracker != nil {
			e.tracker.Record(alt.Provider, latency, err)
		}
		if e.fallbacks != nil {
			e.fallbacks.RecordOutcome(domain, alt.Name, err == nil && resp != nil && resp.Content != "")
		}

		if err == nil && resp != nil && resp.Content != "" {
			confidence := confidenceFor(resp.Content, latency, e.roleDeadline)
			if confidence > alt.BaselineQuality && alt.BaselineQuality > 0 {
				confidence = alt.BaselineQuality
			}
			span.SetAttributes(telemetry.RoleOutcomeAttributes(
				string(core.StatusFulfilled),
				resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
				float64(latency.Milliseconds()))...)
			return core.RoleOutput{
				Role:            b.Role,
				Provider:        alt.Provider,
				Model:           alt.Model,
				Status:          core.StatusFulfilled,
				Content:         resp.Content,
				LatencyMs:       latency.Milliseconds(),
				TokensIn:        resp.Usage.PromptTokens,
				TokensOut:       resp.Usage.CompletionTokens,
				Confidence:      confidence,
				ConfidenceLevel: core.ConfidenceLabel(confidence),
			}
		}
		if err != nil {
			lastErr = err
		}
	}

	span.SetAttributes(telemetry.RoleOutcomeAttributes(string(core.StatusFailed), 0, 0, 0)...)
	return failedOutput(b, lastErr)
}

// candidates returns the viable providers for a role, the primary
// binding first when no fallback manager is wired.
func (e *Engine) candidates(domain resilience.Domain, b Binding) []resilience.Alternative {
	if e.fallbacks != nil {
		if alts := e.fallbacks.Candidates(domain); len(alts) > 0 {
			return alts
		}
	}
	return append([]resilience.Alternative{b.primaryAlternative()}, b.Alternates...)
}

// vote aggregates the outputs, downgrading to the simple strategies
// when complex voting is restricted.
func (e *Engine) vote(ctx context.Context, outputs []core.RoleOutput) *core.VotingResult {
	ctx, span := e.tracer.Start(ctx, "ensemble.vote")
	defer span.End()

	var result *core.VotingResult
	var err error
	if e.restricted(degradation.FeatureVoting) || e.restricted(degradation.FeatureComplexVoting) {
		result, err = e.voter.Fallback(outputs)
	} else {
		result, err = e.voter.Vote(outputs)
	}
	if err != nil || result == nil {
		// Zero outputs of any kind. A low-confidence placeholder keeps
		// the envelope well formed.
		result = &core.VotingResult{
			Winner:     "",
			Confidence: 0,
			Consensus:  core.ConsensusFallback,
			Weights:    map[string]float64{},
		}
	}
	span.SetAttributes(telemetry.VotingAttributes(result.Winner, result.Consensus, result.Strategy)...)
	return result
}

func (e *Engine) synthesize(ctx context.Context, prompt string, outputs []core.RoleOutput, vote *core.VotingResult) *core.SynthesisResult {
	ctx, span := e.tracer.Start(ctx, "ensemble.synthesize")
	defer span.End()

	result := e.synth.Synthesize(ctx, prompt, outputs, vote)
	span.SetAttributes(telemetry.SynthesisAttributes(string(result.Status), result.FallbackUsed, result.SourceCount)...)
	return result
}

// lookupCache consults the ensemble cache. Returns the derived key
// (reused on store) and the cached result on hit.
func (e *Engine) lookupCache(ctx context.Context, req core.Request) (string, *core.EnsembleResult) {
	if e.cache == nil || e.restricted(degradation.FeatureCaching) {
		return "", nil
	}
	key, err := cache.Key(cache.PrefixEnsemble, cacheKeyPayload{
		Prompt: req.Prompt,
		UserID: req.UserID,
		Tier:   req.Tier,
	})
	if err != nil {
		return "", nil
	}

	var cached core.EnsembleResult
	hit, err := e.cache.Get(key, &cached)
	tier := ""
	if t, ok := e.cache.TierOf(key); ok {
		tier = string(t)
	}
	e.metrics.RecordCacheEvent(ctx, tier, hit && err == nil)
	if err != nil || !hit {
		return key, nil
	}
	return key, &cached
}

func (e *Engine) storeCache(ctx context.Context, key string, result *core.EnsembleResult) {
	if e.cache == nil || key == "" || e.restricted(degradation.FeatureCaching) {
		return
	}
	err := e.cache.Set(key, result, e.cacheTTL)
	if e.fallbacks != nil {
		e.fallbacks.RecordOutcome(resilience.DomainStorage, cache.StrategyMemoryCache, err == nil)
	}
	if err != nil {
		e.logger.WarnContext(ctx, "failed to cache ensemble result", slog.Any("error", err))
	}
}

// recordGauges refreshes the breaker and degradation gauges after a
// request so exported state tracks the hot path.
func (e *Engine) recordGauges(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	if e.breakers != nil {
		for _, cb := range e.breakers.All() {
			e.metrics.RecordBreakerState(ctx, cb.Name(), breakerStateValue(cb.State()))
		}
	}
	if e.degradation != nil {
		level := e.degradation.Level()
		e.metrics.RecordDegradationLevel(ctx, int64(level), level.String())
	}
}

func breakerStateValue(s resilience.State) int64 {
	switch s {
	case resilience.StateOpen:
		return 0
	case resilience.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

func (e *Engine) restricted(feature string) bool {
	return e.degradation != nil && e.degradation.IsFeatureRestricted(feature)
}

func (e *Engine) level() string {
	if e.degradation == nil {
		return degradation.LevelFull.String()
	}
	return e.degradation.Level().String()
}

func timeoutOutput(b Binding) core.RoleOutput {
	return core.RoleOutput{
		Role:     b.Role,
		Provider: b.Provider,
		Model:    b.Model,
		Status:   core.StatusFailed,
		Error:    "timeout",
	}
}

func failedOutput(b Binding, err error) core.RoleOutput {
	msg := "no viable provider"
	if err != nil {
		classified := errors.Classify(err)
		if classified.Code == errors.CodeTimeout {
			msg = "timeout"
		} else {
			msg = classified.Message
		}
	}
	return core.RoleOutput{
		Role:     b.Role,
		Provider: b.Provider,
		Model:    b.Model,
		Status:   core.StatusFailed,
		Error:    msg,
	}
}

// confidenceFor scores fulfilled content with cheap deterministic
// heuristics. Voting refines these scores later; nothing here is
// invented telemetry.
func confidenceFor(content string, latency, roleDeadline time.Duration) float64 {
	confidence := 0.6
	if n := len(content); n >= 50 && n <= 2000 {
		confidence += 0.15
	}
	trimmed := strings.TrimRight(content, " \t\n")
	if trimmed != "" {
		switch trimmed[len(trimmed)-1] {
		case '.', '!', '?', ':', '`':
			confidence += 0.1
		}
	}
	if roleDeadline > 0 && latency < roleDeadline/4 {
		confidence += 0.1
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}
