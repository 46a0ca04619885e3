// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/chorusml/chorus/pkg/config"
)

type validateResult struct {
	Config    checkResult   `json:"config"`
	Providers []checkResult `json:"providers"`
	Telemetry checkResult   `json:"telemetry"`
	Overall   string        `json:"overall"`
}

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warn", "error", "skip"
	Message string `json:"message,omitempty"`
}

func runValidate(global globalFlags) {
	result := validateResult{Providers: []checkResult{}}
	hasError := false
	hasWarn := false

	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		result.Config = checkResult{Name: "config", Status: "error", Message: err.Error()}
		hasError = true
	} else {
		result.Config = checkResult{Name: "config", Status: "ok"}
	}

	if cfg != nil {
		result.Providers = validateProviders(cfg)
		for _, r := range result.Providers {
			if r.Status == "warn" {
				hasWarn = true
			}
		}
		result.Telemetry = validateTelemetry(cfg)
	} else {
		result.Telemetry = checkResult{Name: "telemetry", Status: "skip", Message: "config not loaded"}
	}

	switch {
	case hasError:
		result.Overall = "error"
	case hasWarn:
		result.Overall = "warn"
	default:
		result.Overall = "ok"
	}

	if global.JSON {
		printJSON(result)
	} else {
		printValidateResult(result)
	}
	if hasError {
		os.Exit(1)
	}
}

// validateProviders checks key presence only; it never calls out. A
// missing key is a warning because the role degrades to its alternates
// rather than failing the whole ensemble.
func validateProviders(cfg *config.Config) []checkResult {
	checks := []struct {
		name   string
		key    string
		model  string
		detail string
	}{
		{"openai", cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.Model, "gpt4o role and synthesis"},
		{"anthropic", cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.Model, "claude role (premium)"},
		{"gemini", cfg.Providers.Gemini.APIKey, cfg.Providers.Gemini.Model, "gemini role"},
		{"xai", cfg.Providers.XAI.APIKey, cfg.Providers.XAI.Model, "xai role (premium)"},
	}

	results := make([]checkResult, 0, len(checks))
	for _, check := range checks {
		name := fmt.Sprintf("provider:%s", check.name)
		if check.key == "" {
			results = append(results, checkResult{
				Name:    name,
				Status:  "warn",
				Message: fmt.Sprintf("no api_key set; %s unavailable", check.detail),
			})
			continue
		}
		results = append(results, checkResult{
			Name:    name,
			Status:  "ok",
			Message: check.model,
		})
	}
	return results
}

func validateTelemetry(cfg *config.Config) checkResult {
	switch cfg.Telemetry.Exporter {
	case "otlp":
		return checkResult{
			Name:    "telemetry",
			Status:  "ok",
			Message: fmt.Sprintf("otlp -> %s", cfg.Telemetry.OTLPEndpoint),
		}
	case "none":
		return checkResult{Name: "telemetry", Status: "ok", Message: "disabled"}
	default:
		return checkResult{Name: "telemetry", Status: "ok", Message: cfg.Telemetry.Exporter}
	}
}

func printValidateResult(result validateResult) {
	statusIcon := map[string]string{
		"ok":    "✓",
		"warn":  "⚠",
		"error": "✗",
		"skip":  "○",
	}

	fmt.Println("Chorus Configuration Validation")
	fmt.Println("===============================")
	fmt.Println()

	printCheck(statusIcon, result.Config)
	for _, r := range result.Providers {
		printCheck(statusIcon, r)
	}
	printCheck(statusIcon, result.Telemetry)

	fmt.Println()
	switch result.Overall {
	case "ok":
		fmt.Println("✓ All checks passed")
	case "warn":
		fmt.Println("⚠ Validation completed with warnings")
	case "error":
		fmt.Println("✗ Validation failed")
	}
}

func printCheck(icons map[string]string, r checkResult) {
	icon := icons[r.Status]
	if r.Message != "" {
		fmt.Printf("%s %s: %s\n", icon, r.Name, r.Message)
	} else {
		fmt.Printf("%s %s\n", icon, r.Name)
	}
}
