// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chorusml/chorus/pkg/cache"
	"github.com/chorusml/chorus/pkg/config"
	"github.com/chorusml/chorus/pkg/core"
	"github.com/chorusml/chorus/pkg/degradation"
	"github.com/chorusml/chorus/pkg/ensemble"
	"github.com/chorusml/chorus/pkg/health"
	"github.com/chorusml/chorus/pkg/llm"
	"github.com/chorusml/chorus/pkg/providers/anthropic"
	"github.com/chorusml/chorus/pkg/providers/gemini"
	"github.com/chorusml/chorus/pkg/providers/openai"
	"github.com/chorusml/chorus/pkg/providers/xai"
	"github.com/chorusml/chorus/pkg/recovery"
	"github.com/chorusml/chorus/pkg/resilience"
	"github.com/chorusml/chorus/pkg/synthesis"
	"github.com/chorusml/chorus/pkg/telemetry"
	"github.com/chorusml/chorus/pkg/voting"
)

func runAsk(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("ask", flag.ContinueOnError)
	tier := cmd.String("tier", "free", "User tier (free or premium)")
	userID := cmd.String("user", "local", "User ID")
	sessionID := cmd.String("session", "cli", "Session ID")
	audience := cmd.String("audience", "user", "Error audience: user, developer, admin")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if cmd.NArg() < 1 {
		fatal(fmt.Errorf("usage: chorus ask <prompt>"))
	}
	prompt := strings.Join(cmd.Args(), " ")

	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		fatal(err)
	}

	engine, shutdown, err := buildEngine(ctx, cfg, global.Mock)
	if err != nil {
		fatal(err)
	}
	defer shutdown()

	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()

	result, err := engine.Process(ctx, core.Request{
		Prompt:    prompt,
		UserID:    *userID,
		SessionID: *sessionID,
		Tier:      core.Tier(*tier),
	})
	if err != nil {
		envelope := ensemble.BuildEnvelope(err, ensemble.Audience(*audience), "")
		printJSON(envelope)
		os.Exit(1)
	}

	if global.JSON {
		printJSON(result)
		return
	}
	printResult(result)
}

// buildEngine wires the full stack from configuration: telemetry,
// providers, breakers, fallback catalogs, degradation and recovery.
// The returned shutdown flushes telemetry and stops background loops.
func buildEngine(ctx context.Context, cfg *config.Config, mock bool) (*ensemble.Engine, func(), error) {
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	shutdownTel, err := telemetry.InitWithConfig("chorus", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: true,
	})
	if err != nil {
		return nil, nil, err
	}

	metrics, err := telemetry.NewEnsembleMetrics()
	if err != nil {
		return nil, nil, err
	}

	store := cache.New(cache.Config{
		MaxHot:            cfg.Cache.MaxHot,
		MaxWarm:           cfg.Cache.MaxWarm,
		MaxCold:           cfg.Cache.MaxCold,
		TTLHot:            cfg.Cache.TTLHot(),
		TTLWarm:           cfg.Cache.TTLWarm(),
		TTLCold:           cfg.Cache.TTLCold(),
		CompressThreshold: cfg.Cache.CompressThreshold,
		MaxMemoryBytes:    cfg.Cache.MaxMemoryMB << 20,
	})

	breakers := resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout(),
		MonitorWindow:    cfg.Breaker.MonitorWindow(),
	})
	fallbacks := resilience.NewManager(breakers)
	fallbacks.Register(resilience.DomainVoting, voting.CatalogAlternatives()...)
	fallbacks.Register(resilience.DomainSynthesis, synthesis.CatalogAlternatives()...)

	tracker := health.NewTracker()
	degrade := degradation.NewManager(tracker, breakers, logger)
	degrade.SetEnabled(cfg.Degradation.Enabled)

	providers, err := buildProviders(ctx, cfg, mock)
	if err != nil {
		return nil, nil, err
	}

	roster := ensemble.NewRoster()
	for name, p := range providers {
		roster.BindProvider(name, p)
	}
	for _, b := range ensemble.DefaultBindings() {
		roster.Bind(b)
	}

	synthEngine := synthesis.NewEngine(fallbacks,
		synthesis.WithSynthesizer(providers["openai"], "openai", cfg.Providers.OpenAI.Model),
		synthesis.WithCache(store),
		synthesis.WithRestriction(degrade.IsFeatureRestricted),
	)

	engine := ensemble.NewEngine(ensemble.Params{
		Roster:      roster,
		Cache:       store,
		Breakers:    breakers,
		Fallbacks:   fallbacks,
		Tracker:     tracker,
		Degradation: degrade,
		Voter:       voting.NewEngine(fallbacks),
		Synthesizer: synthEngine,
		Metrics:     metrics,
		Logger:      logger,
		Retry: resilience.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay(),
			MaxDelay:    cfg.Retry.MaxDelay(),
			Multiplier:  cfg.Retry.Multiplier,
			Jitter:      cfg.Retry.Jitter(),
		},
		Deadline:     cfg.Ensemble.Deadline(),
		RoleDeadline: cfg.Ensemble.RoleDeadline(),
		CacheTTL:     cfg.Ensemble.CacheTTL(),
	})

	recoveryCtx, stopRecovery := context.WithCancel(ctx)
	var runner *recovery.Runner
	if cfg.Recovery.Enabled {
		runner = recovery.NewRunner(breakers, tracker, fallbacks, logger,
			recovery.WithMetrics(metrics))
		runner.Start(recoveryCtx)
	}

	shutdown := func() {
		stopRecovery()
		if runner != nil {
			runner.Wait()
		}
		store.Close()
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTel(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}
	return engine, shutdown, nil
}

// buildProviders creates the upstream clients. With mock enabled every
// provider returns canned content, so the full pipeline runs offline.
func buildProviders(ctx context.Context, cfg *config.Config, mock bool) (map[string]llm.Provider, error) {
	if mock {
		return map[string]llm.Provider{
			"openai":    &llm.MockProvider{Response: "Mock analysis from the gpt4o role."},
			"anthropic": &llm.MockProvider{Response: "Mock analysis from the claude role."},
			"gemini":    &llm.MockProvider{Response: "Mock analysis from the gemini role."},
			"xai":       &llm.MockProvider{Response: "Mock analysis from the xai role."},
		}, nil
	}

	out := make(map[string]llm.Provider, 4)

	openaiOpts := []openai.Option{
		openai.WithAPIKey(cfg.Providers.OpenAI.APIKey),
		openai.WithModel(cfg.Providers.OpenAI.Model),
	}
	if cfg.Providers.OpenAI.BaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(cfg.Providers.OpenAI.BaseURL))
	}
	out["openai"] = openai.New(openaiOpts...)

	out["anthropic"] = anthropic.New(
		anthropic.WithAPIKey(cfg.Providers.Anthropic.APIKey),
		anthropic.WithModel(cfg.Providers.Anthropic.Model),
	)

	geminiProvider, err := gemini.NewWithAPIKey(ctx, cfg.Providers.Gemini.APIKey,
		gemini.WithModel(cfg.Providers.Gemini.Model))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	out["gemini"] = geminiProvider

	out["xai"] = xai.NewWithBaseURL(cfg.Providers.XAI.APIKey, cfg.Providers.XAI.BaseURL,
		xai.WithModel(cfg.Providers.XAI.Model))

	return out, nil
}

func printResult(result *core.EnsembleResult) {
	fmt.Printf("correlation: %s\n", result.CorrelationID)
	fmt.Printf("degradation: %s  cached: %t\n\n", result.DegradationLevel, result.FromCache)

	writer := newTabWriter()
	writeRow(writer, "ROLE", "STATUS", "PROVIDER", "MODEL", "LATENCY", "CONFIDENCE")
	for _, out := range result.RoleOutputs {
		latency := fmt.Sprintf("%dms", out.LatencyMs)
		confidence := fmt.Sprintf("%.2f", out.Confidence)
		if out.Status != core.StatusFulfilled {
			latency, confidence = "-", "-"
		}
		writeRow(writer, out.Role, string(out.Status), out.Provider, out.Model, latency, confidence)
	}
	_ = writer.Flush()

	if result.Voting != nil && result.Voting.Winner != "" {
		fmt.Printf("\nwinner: %s (consensus=%s, strategy=%s)\n",
			result.Voting.Winner, result.Voting.Consensus, result.Voting.Strategy)
	}
	if result.Synthesis != nil {
		fmt.Printf("\n--- synthesis (%s, confidence %.2f) ---\n%s\n",
			result.Synthesis.Status, result.Synthesis.Confidence, result.Synthesis.Content)
	}
}
