// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

// Adapter describes an available provider or strategy in Chorus.
type Adapter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	ConfigKeys  []string `json:"config_keys,omitempty"`
	Docs        string   `json:"docs,omitempty"`
}

// adaptersRegistry is the catalog of known adapters.
var adaptersRegistry = []Adapter{
	// LLM Providers
	{
		Name:        "openai",
		Type:        "llm",
		Description: "OpenAI GPT models (gpt4o role, synthesis)",
		ConfigKeys:  []string{"providers.openai.api_key", "providers.openai.model"},
		Docs:        "https://platform.openai.com/docs",
	},
	{
		Name:        "anthropic",
		Type:        "llm",
		Description: "Anthropic Claude models (claude role, premium)",
		ConfigKeys:  []string{"providers.anthropic.api_key", "providers.anthropic.model"},
		Docs:        "https://docs.anthropic.com",
	},
	{
		Name:        "gemini",
		Type:        "llm",
		Description: "Google Gemini models (gemini role)",
		ConfigKeys:  []string{"providers.gemini.api_key", "providers.gemini.model"},
		Docs:        "https://ai.google.dev",
	},
	{
		Name:        "xai",
		Type:        "llm",
		Description: "xAI Grok models via OpenAI-compatible API (xai role, premium)",
		ConfigKeys:  []string{"providers.xai.api_key", "providers.xai.model", "providers.xai.base_url"},
		Docs:        "https://docs.x.ai",
	},
	{
		Name:        "mock",
		Type:        "llm",
		Description: "Mock providers for offline runs (--mock)",
		Docs:        "pkg/llm/mock.go",
	},

	// Voting strategies
	{
		Name:        "weighted_scoring",
		Type:        "voting",
		Description: "Primary: confidence, length, structure and completeness signals",
		Docs:        "pkg/voting/voting.go",
	},
	{
		Name:        "highest_confidence",
		Type:        "voting",
		Description: "Fallback: highest-confidence fulfilled output wins",
	},
	{
		Name:        "simple_majority",
		Type:        "voting",
		Description: "Fallback: strict majority of identical answers",
	},
	{
		Name:        "weighted_random",
		Type:        "voting",
		Description: "Fallback: deterministic seeded pick",
	},
	{
		Name:        "first_available",
		Type:        "voting",
		Description: "Last resort: first output in role order",
	},

	// Synthesis strategies
	{
		Name:        "enhanced_synthesis",
		Type:        "synthesis",
		Description: "Primary: LLM synthesis over all fulfilled outputs",
		Docs:        "pkg/synthesis/synthesis.go",
	},
	{
		Name:        "best_response_selection",
		Type:        "synthesis",
		Description: "Fallback: voting winner's content verbatim",
	},
	{
		Name:        "simple_concatenation",
		Type:        "synthesis",
		Description: "Fallback: all fulfilled outputs joined with attribution",
	},
	{
		Name:        "template_based",
		Type:        "synthesis",
		Description: "Fallback: winner content in a degraded-service template",
	},
	{
		Name:        "cached_response",
		Type:        "synthesis",
		Description: "Fallback: last good synthesis from the cache",
	},

	// Telemetry
	{
		Name:        "otel-stdout",
		Type:        "telemetry",
		Description: "OpenTelemetry traces and metrics to stdout",
		ConfigKeys:  []string{"telemetry.exporter=stdout"},
	},
	{
		Name:        "otel-otlp",
		Type:        "telemetry",
		Description: "OpenTelemetry export over OTLP gRPC",
		ConfigKeys:  []string{"telemetry.exporter=otlp", "telemetry.otlp_endpoint"},
	},
}

func runAdapters(global globalFlags, args []string) {
	if len(args) == 0 || args[0] != "list" {
		fatal(fmt.Errorf("usage: chorus adapters list [--type <type>]"))
	}

	typeFilter := ""
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch {
		case rest[i] == "--type" && i+1 < len(rest):
			typeFilter = rest[i+1]
			i++
		default:
			fatal(fmt.Errorf("unknown adapters flag %q", rest[i]))
		}
	}

	selected := make([]Adapter, 0, len(adaptersRegistry))
	for _, adapter := range adaptersRegistry {
		if typeFilter != "" && adapter.Type != typeFilter {
			continue
		}
		selected = append(selected, adapter)
	}

	if global.JSON {
		printJSON(selected)
		return
	}

	writer := newTabWriter()
	writeRow(writer, "NAME", "TYPE", "DESCRIPTION")
	for _, adapter := range selected {
		writeRow(writer, adapter.Name, adapter.Type, adapter.Description)
	}
	_ = writer.Flush()
}
