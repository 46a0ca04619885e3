// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EnsembleMetrics holds the OTEL instruments recorded on the hot path.
// A nil *EnsembleMetrics is a valid no-op receiver so tests and the
// CLI can run without telemetry.
type EnsembleMetrics struct {
	requests         metric.Int64Counter
	requestLatency   metric.Float64Histogram
	roleOutcomes     metric.Int64Counter
	cacheEvents      metric.Int64Counter
	breakerState     metric.Int64Gauge
	degradationLevel metric.Int64Gauge
	recoveryAttempts metric.Int64Counter
}

// NewEnsembleMetrics registers the Chorus instruments on the global
// meter provider.
func NewEnsembleMetrics() (*EnsembleMetrics, error) {
	meter := otel.Meter("chorus/ensemble")

	requests, err := meter.Int64Counter(
		"chorus.ensemble.requests",
		metric.WithDescription("Ensemble requests by tier and cache outcome"),
	)
	if err != nil {
		return nil, err
	}

	requestLatency, err := meter.Float64Histogram(
		"chorus.ensemble.duration_ms",
		metric.WithDescription("End-to-end ensemble latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	roleOutcomes, err := meter.Int64Counter(
		"chorus.role.outcomes",
		metric.WithDescription("Role task outcomes by role and status"),
	)
	if err != nil {
		return nil, err
	}

	cacheEvents, err := meter.Int64Counter(
		"chorus.cache.events",
		metric.WithDescription("Cache hits and misses by tier"),
	)
	if err != nil {
		return nil, err
	}

	breakerState, err := meter.Int64Gauge(
		"chorus.breaker.state",
		metric.WithDescription("Circuit breaker state per service (0=open, 1=half-open, 2=closed)"),
	)
	if err != nil {
		return nil, err
	}

	degradationLevel, err := meter.Int64Gauge(
		"chorus.degradation.level",
		metric.WithDescription("Current degradation level (0=full .. 5=emergency)"),
	)
	if err != nil {
		return nil, err
	}

	recoveryAttempts, err := meter.Int64Counter(
		"chorus.recovery.attempts",
		metric.WithDescription("Recovery playbook attempts by service and action"),
	)
	if err != nil {
		return nil, err
	}

	return &EnsembleMetrics{
		requests:         requests,
		requestLatency:   requestLatency,
		roleOutcomes:     roleOutcomes,
		cacheEvents:      cacheEvents,
		breakerState:     breakerState,
		degradationLevel: degradationLevel,
		recoveryAttempts: recoveryAttempts,
	}, nil
}

// RecordRequest counts one ensemble request and its latency.
func (m *EnsembleMetrics) RecordRequest(ctx context.Context, tier string, fromCache bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrUserTier, tier),
		attribute.Bool(AttrFromCache, fromCache),
	)
	m.requests.Add(ctx, 1, attrs)
	m.requestLatency.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

// RecordRoleOutcome counts one finished role task.
func (m *EnsembleMetrics) RecordRoleOutcome(ctx context.Context, role, status string) {
	if m == nil {
		return
	}
	m.roleOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrRole, role),
		attribute.String(AttrRoleStatus, status),
	))
}

// RecordCacheEvent counts a cache hit or miss.
func (m *EnsembleMetrics) RecordCacheEvent(ctx context.Context, tier string, hit bool) {
	if m == nil {
		return
	}
	m.cacheEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCacheTier, tier),
		attribute.Bool(AttrCacheHit, hit),
	))
}

// RecordBreakerState gauges a breaker (0=open, 1=half-open, 2=closed).
func (m *EnsembleMetrics) RecordBreakerState(ctx context.Context, service string, state int64) {
	if m == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(
		attribute.String(AttrBreakerName, service),
	))
}

// RecordDegradationLevel gauges the current capability level.
func (m *EnsembleMetrics) RecordDegradationLevel(ctx context.Context, level int64, name string) {
	if m == nil {
		return
	}
	m.degradationLevel.Record(ctx, level, metric.WithAttributes(
		attribute.String(AttrDegradationName, name),
	))
}

// RecordRecoveryAttempt counts one recovery playbook attempt.
func (m *EnsembleMetrics) RecordRecoveryAttempt(ctx context.Context, service, action string, resolved bool) {
	if m == nil {
		return
	}
	m.recoveryAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrBreakerName, service),
		attribute.String("chorus.recovery.action", action),
		attribute.Bool("chorus.recovery.resolved", resolved),
	))
}
