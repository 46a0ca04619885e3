// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Env != "production" {
		t.Errorf("env = %q", cfg.Env)
	}
	if cfg.Ensemble.Deadline() != 30*time.Second {
		t.Errorf("ensemble deadline = %v", cfg.Ensemble.Deadline())
	}
	if cfg.Ensemble.RoleDeadline() != 25*time.Second {
		t.Errorf("role deadline = %v", cfg.Ensemble.RoleDeadline())
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry attempts = %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("breaker threshold = %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Cache.MaxHot != 1000 || cfg.Cache.MaxWarm != 5000 || cfg.Cache.MaxCold != 44000 {
		t.Errorf("cache capacities = %d/%d/%d", cfg.Cache.MaxHot, cfg.Cache.MaxWarm, cfg.Cache.MaxCold)
	}
	if cfg.Cache.TTLHot() != 10*time.Minute {
		t.Errorf("hot TTL = %v", cfg.Cache.TTLHot())
	}
	if !cfg.Recovery.Enabled || !cfg.Degradation.Enabled {
		t.Error("recovery and degradation default on")
	}
	if cfg.Providers.XAI.BaseURL != "https://api.x.ai/v1" {
		t.Errorf("xai base url = %q", cfg.Providers.XAI.BaseURL)
	}
}

func TestYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chorus.yaml")
	content := []byte(`
ensemble:
  deadline_ms: 10000
providers:
  openai:
    model: gpt-4o-mini
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ensemble.DeadlineMs != 10000 {
		t.Errorf("deadline_ms = %d, want file value", cfg.Ensemble.DeadlineMs)
	}
	if cfg.Providers.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("openai model = %q", cfg.Providers.OpenAI.Model)
	}
	// Untouched keys keep their defaults.
	if cfg.Ensemble.RoleDeadlineMs != 25000 {
		t.Errorf("role_deadline_ms = %d", cfg.Ensemble.RoleDeadlineMs)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("CHORUS_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("CHORUS_PROVIDERS_ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("CHORUS_ENSEMBLE_DEADLINE_MS", "12345")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("retry attempts = %d, want env value 7", cfg.Retry.MaxAttempts)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-test" {
		t.Errorf("anthropic api key = %q", cfg.Providers.Anthropic.APIKey)
	}
	if cfg.Ensemble.DeadlineMs != 12345 {
		t.Errorf("deadline_ms = %d, want 12345", cfg.Ensemble.DeadlineMs)
	}
}

func TestEnvToPath(t *testing.T) {
	cases := map[string]string{
		"CHORUS_ENSEMBLE_DEADLINE_MS":        "ensemble.deadline_ms",
		"CHORUS_RETRY_MAX_ATTEMPTS":          "retry.max_attempts",
		"CHORUS_PROVIDERS_OPENAI_API_KEY":    "providers.openai.api_key",
		"CHORUS_PROVIDERS_XAI_BASE_URL":      "providers.xai.base_url",
		"CHORUS_CACHE_TTL_HOT_MS":            "cache.ttl_hot_ms",
		"CHORUS_BREAKER_FAILURE_THRESHOLD":   "breaker.failure_threshold",
		"CHORUS_ENV":                         "env",
		"CHORUS_TELEMETRY_OTLP_ENDPOINT":     "telemetry.otlp_endpoint",
		"CHORUS_PROVIDERS_ANTHROPIC_API_KEY": "providers.anthropic.api_key",
	}
	for in, want := range cases {
		if got := envToPath(in); got != want {
			t.Errorf("envToPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTestEnvCollapse(t *testing.T) {
	t.Setenv("CHORUS_ENV", "test")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retry.MaxAttempts != 1 {
		t.Errorf("test retry attempts = %d, want 1", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelayMs != 10 {
		t.Errorf("test base delay = %d, want 10", cfg.Retry.BaseDelayMs)
	}
	if cfg.Breaker.FailureThreshold != 10 {
		t.Errorf("test breaker threshold = %d, want 10", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.ResetMs != 1000 || cfg.Breaker.WindowMs != 5000 {
		t.Errorf("test breaker timing = %d/%d", cfg.Breaker.ResetMs, cfg.Breaker.WindowMs)
	}
}

func TestExplicitValueSurvivesCollapse(t *testing.T) {
	t.Setenv("CHORUS_ENV", "test")
	t.Setenv("CHORUS_RETRY_MAX_ATTEMPTS", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("explicit retry attempts = %d, want 5", cfg.Retry.MaxAttempts)
	}
}

func TestValidateRejectsBadExporter(t *testing.T) {
	t.Setenv("CHORUS_TELEMETRY_EXPORTER", "carrier-pigeon")
	if _, err := Load(""); err == nil {
		t.Error("invalid exporter should fail validation")
	}
}

func TestValidateRequiresOTLPEndpoint(t *testing.T) {
	t.Setenv("CHORUS_TELEMETRY_EXPORTER", "otlp")
	if _, err := Load(""); err == nil {
		t.Error("otlp exporter without endpoint should fail validation")
	}
}
