// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the Chorus configuration: programmatic
// defaults, overlaid by an optional YAML file, overlaid by CHORUS_
// environment variables. All durations are expressed in milliseconds
// and converted at the edges.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Env selects the environment profile. "test" collapses retry and
	// breaker defaults so suites run fast.
	Env string `koanf:"env"`

	Log         LogConfig         `koanf:"log"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Ensemble    EnsembleConfig    `koanf:"ensemble"`
	Retry       RetryConfig       `koanf:"retry"`
	Breaker     BreakerConfig     `koanf:"breaker"`
	Cache       CacheConfig       `koanf:"cache"`
	Recovery    RecoveryConfig    `koanf:"recovery"`
	Degradation DegradationConfig `koanf:"degradation"`
	Providers   ProvidersConfig   `koanf:"providers"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

type EnsembleConfig struct {
	DeadlineMs     int64 `koanf:"deadline_ms"`
	RoleDeadlineMs int64 `koanf:"role_deadline_ms"`
	CacheTTLMs     int64 `koanf:"cache_ttl_ms"`
}

func (c EnsembleConfig) Deadline() time.Duration     { return time.Duration(c.DeadlineMs) * time.Millisecond }
func (c EnsembleConfig) RoleDeadline() time.Duration { return time.Duration(c.RoleDeadlineMs) * time.Millisecond }
func (c EnsembleConfig) CacheTTL() time.Duration     { return time.Duration(c.CacheTTLMs) * time.Millisecond }

type RetryConfig struct {
	MaxAttempts int     `koanf:"max_attempts"`
	BaseDelayMs int64   `koanf:"base_delay_ms"`
	MaxDelayMs  int64   `koanf:"max_delay_ms"`
	Multiplier  float64 `koanf:"multiplier"`
	JitterMs    int64   `koanf:"jitter_ms"`
}

func (c RetryConfig) BaseDelay() time.Duration { return time.Duration(c.BaseDelayMs) * time.Millisecond }
func (c RetryConfig) MaxDelay() time.Duration  { return time.Duration(c.MaxDelayMs) * time.Millisecond }
func (c RetryConfig) Jitter() time.Duration    { return time.Duration(c.JitterMs) * time.Millisecond }

type BreakerConfig struct {
	FailureThreshold int   `koanf:"failure_threshold"`
	ResetMs          int64 `koanf:"reset_ms"`
	WindowMs         int64 `koanf:"window_ms"`
}

func (c BreakerConfig) ResetTimeout() time.Duration  { return time.Duration(c.ResetMs) * time.Millisecond }
func (c BreakerConfig) MonitorWindow() time.Duration { return time.Duration(c.WindowMs) * time.Millisecond }

type CacheConfig struct {
	MaxMemoryMB       int64 `koanf:"max_memory_mb"`
	CompressThreshold int   `koanf:"compress_threshold"`
	MaxHot            int   `koanf:"max_hot"`
	MaxWarm           int   `koanf:"max_warm"`
	MaxCold           int   `koanf:"max_cold"`
	TTLHotMs          int64 `koanf:"ttl_hot_ms"`
	TTLWarmMs         int64 `koanf:"ttl_warm_ms"`
	TTLColdMs         int64 `koanf:"ttl_cold_ms"`
}

func (c CacheConfig) TTLHot() time.Duration  { return time.Duration(c.TTLHotMs) * time.Millisecond }
func (c CacheConfig) TTLWarm() time.Duration { return time.Duration(c.TTLWarmMs) * time.Millisecond }
func (c CacheConfig) TTLCold() time.Duration { return time.Duration(c.TTLColdMs) * time.Millisecond }

type RecoveryConfig struct {
	Enabled bool `koanf:"enabled"`
}

type DegradationConfig struct {
	Enabled bool `koanf:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
}

type ProvidersConfig struct {
	OpenAI    ProviderConfig `koanf:"openai"`
	Anthropic ProviderConfig `koanf:"anthropic"`
	Gemini    ProviderConfig `koanf:"gemini"`
	XAI       ProviderConfig `koanf:"xai"`
}

// sections are the koanf path prefixes recognized when mapping
// CHORUS_ environment variables. Longer prefixes first so provider
// keys resolve before the bare "providers" section.
var sections = []string{
	"providers_openai", "providers_anthropic", "providers_gemini", "providers_xai",
	"log", "telemetry", "ensemble", "retry", "breaker", "cache",
	"recovery", "degradation",
}

// envToPath maps CHORUS_ENSEMBLE_DEADLINE_MS to ensemble.deadline_ms.
// Section names become path segments; the remainder stays a single
// leaf key, underscores included.
func envToPath(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "CHORUS_"))
	for _, sec := range sections {
		if strings.HasPrefix(s, sec+"_") {
			return strings.ReplaceAll(sec, "_", ".") + "." + strings.TrimPrefix(s, sec+"_")
		}
	}
	return s
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("env", "production")
	k.Set("log.level", "info")
	k.Set("log.format", "json")
	k.Set("telemetry.exporter", "stdout")
	k.Set("ensemble.deadline_ms", 30000)
	k.Set("ensemble.role_deadline_ms", 25000)
	k.Set("ensemble.cache_ttl_ms", 300000)
	k.Set("retry.max_attempts", 3)
	k.Set("retry.base_delay_ms", 1000)
	k.Set("retry.max_delay_ms", 30000)
	k.Set("retry.multiplier", 2.0)
	k.Set("retry.jitter_ms", 250)
	k.Set("breaker.failure_threshold", 5)
	k.Set("breaker.reset_ms", 60000)
	k.Set("breaker.window_ms", 120000)
	k.Set("cache.max_memory_mb", 200)
	k.Set("cache.compress_threshold", 512)
	k.Set("cache.max_hot", 1000)
	k.Set("cache.max_warm", 5000)
	k.Set("cache.max_cold", 44000)
	k.Set("cache.ttl_hot_ms", 600000)
	k.Set("cache.ttl_warm_ms", 3600000)
	k.Set("cache.ttl_cold_ms", 14400000)
	k.Set("recovery.enabled", true)
	k.Set("degradation.enabled", true)
	k.Set("providers.openai.model", "gpt-4o")
	k.Set("providers.anthropic.model", "claude-sonnet-4-5")
	k.Set("providers.gemini.model", "gemini-2.5-flash")
	k.Set("providers.xai.model", "grok-4")
	k.Set("providers.xai.base_url", "https://api.x.ai/v1")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (CHORUS_RETRY_MAX_ATTEMPTS -> retry.max_attempts)
	if err := k.Load(env.Provider("CHORUS_", ".", envToPath), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.collapseForTest()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// collapseForTest replaces still-default retry and breaker values with
// the fast test profile. Explicit overrides survive the collapse.
func (c *Config) collapseForTest() {
	if c.Env != "test" {
		return
	}
	if c.Retry.MaxAttempts == 3 {
		c.Retry.MaxAttempts = 1
	}
	if c.Retry.BaseDelayMs == 1000 {
		c.Retry.BaseDelayMs = 10
	}
	if c.Breaker.FailureThreshold == 5 {
		c.Breaker.FailureThreshold = 10
	}
	if c.Breaker.ResetMs == 60000 {
		c.Breaker.ResetMs = 1000
	}
	if c.Breaker.WindowMs == 120000 {
		c.Breaker.WindowMs = 5000
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	switch c.Telemetry.Exporter {
	case "stdout", "otlp", "none":
	default:
		return fmt.Errorf("telemetry.exporter must be stdout, otlp or none, got %q", c.Telemetry.Exporter)
	}
	if c.Telemetry.Exporter == "otlp" && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry.otlp_endpoint is required with the otlp exporter")
	}
	if c.Ensemble.DeadlineMs < 0 || c.Ensemble.RoleDeadlineMs < 0 {
		return fmt.Errorf("ensemble deadlines must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be at least 1, got %d", c.Breaker.FailureThreshold)
	}
	return nil
}
