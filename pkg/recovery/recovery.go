// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package recovery runs background remediation for failing services.
// Every sweep it looks for open circuit breakers past their reset
// point, classifies the service's last error, and walks the playbook
// for that error category. Attempts are rate limited per service so a
// persistently broken upstream cannot trap the loop.
package recovery

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chorusml/chorus/pkg/errors"
	"github.com/chorusml/chorus/pkg/health"
	"github.com/chorusml/chorus/pkg/resilience"
	"github.com/chorusml/chorus/pkg/telemetry"
)

// Action is one remediation step in a playbook.
type Action string

const (
	ActionWaitAndRetry       Action = "wait_and_retry"
	ActionSwitchProvider     Action = "switch_provider"
	ActionReduceLoad         Action = "reduce_load"
	ActionIncreaseTimeout    Action = "increase_timeout"
	ActionRetryWithBackoff   Action = "retry_with_backoff"
	ActionSwitchEndpoint     Action = "switch_endpoint"
	ActionUseFallback        Action = "use_fallback"
	ActionRefreshCredentials Action = "refresh_credentials"
	ActionAlertAdmin         Action = "alert_admin"
)

// DefaultPlaybooks maps classified error categories to remediation
// steps, tried in order. The auth playbook ends in an admin alert and
// is never auto-recovered past a single provider swap.
func DefaultPlaybooks() map[errors.EnvelopeType][]Action {
	return map[errors.EnvelopeType][]Action{
		errors.TypeRateLimit: {
			ActionWaitAndRetry, ActionSwitchProvider, ActionReduceLoad,
		},
		errors.TypeTimeout: {
			ActionIncreaseTimeout, ActionRetryWithBackoff, ActionSwitchEndpoint,
		},
		errors.TypeServerError: {
			ActionRetryWithBackoff, ActionSwitchProvider, ActionUseFallback,
		},
		errors.TypeAuthError: {
			ActionRefreshCredentials, ActionSwitchProvider, ActionAlertAdmin,
		},
	}
}

// Probe checks whether a service has recovered. Probes should be cheap
// and side-effect free.
type Probe func(ctx context.Context) error

const (
	// DefaultInterval is the sweep cadence.
	DefaultInterval = 60 * time.Second

	// maxAttempts bounds remediation per service per rate window.
	maxAttempts = 3
	rateWindow  = 5 * time.Minute

	probeTimeout = 5 * time.Second
)

// Runner is the background recovery loop.
type Runner struct {
	mu        sync.Mutex
	breakers  *resilience.Registry
	tracker   *health.Tracker
	fallbacks *resilience.Manager
	logger    *slog.Logger
	metrics   *telemetry.EnsembleMetrics
	interval  time.Duration
	playbooks map[errors.EnvelopeType][]Action
	probes    map[string]Probe
	attempts  map[string][]time.Time

	done chan struct{}
}

// Option configures the Runner.
type Option func(*Runner)

// WithInterval overrides the sweep cadence.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.interval = d
	}
}

// WithPlaybooks replaces the default playbook table.
func WithPlaybooks(pb map[errors.EnvelopeType][]Action) Option {
	return func(r *Runner) {
		r.playbooks = pb
	}
}

// WithMetrics records playbook attempts on the given instruments.
func WithMetrics(m *telemetry.EnsembleMetrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a recovery runner. The fallback manager is
// optional; without it provider-swap actions only log.
func NewRunner(breakers *resilience.Registry, tracker *health.Tracker, fallbacks *resilience.Manager, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		breakers:  breakers,
		tracker:   tracker,
		fallbacks: fallbacks,
		logger:    logger,
		interval:  DefaultInterval,
		playbooks: DefaultPlaybooks(),
		probes:    make(map[string]Probe),
		attempts:  make(map[string][]time.Time),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterProbe installs the health probe for a service. Services
// without a probe are only remediated through fallback rerouting.
func (r *Runner) RegisterProbe(service string, probe Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[service] = probe
}

// Start launches the background loop. It stops when ctx is cancelled;
// Wait blocks until the loop has exited.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

// Wait blocks until the loop started by Start has exited.
func (r *Runner) Wait() {
	<-r.done
}

// sweep inspects every open breaker past its reset point and runs the
// matching playbook.
func (r *Runner) sweep(ctx context.Context) {
	now := time.Now()
	for _, cb := range r.breakers.All() {
		if cb.State() != resilience.StateOpen {
			continue
		}
		if now.Before(cb.NextAttemptAt()) {
			continue
		}
		r.remediate(ctx, cb)
	}
}

// remediate runs the playbook for one open breaker.
func (r *Runner) remediate(ctx context.Context, cb *resilience.CircuitBreaker) {
	service := cb.Name()
	if !r.allow(service) {
		r.logger.Debug("recovery rate limit reached", slog.String("service", service))
		return
	}

	category := r.categorize(service)
	playbook, ok := r.playbooks[category]
	if !ok {
		playbook = []Action{ActionRetryWithBackoff, ActionUseFallback}
	}

	log := r.logger.With(
		slog.String("service", service),
		slog.String("category", string(category)),
	)
	for _, action := range playbook {
		resolved, terminal := r.execute(ctx, service, cb, action, log)
		r.metrics.RecordRecoveryAttempt(ctx, service, string(action), resolved)
		if resolved {
			log.Info("recovery action resolved service", slog.String("action", string(action)))
			return
		}
		if terminal {
			return
		}
	}
	log.Warn("recovery playbook exhausted")
}

// categorize classifies the service's last recorded error message.
func (r *Runner) categorize(service string) errors.EnvelopeType {
	sh, ok := r.tracker.Service(service)
	if !ok || sh.LastError == "" {
		return errors.TypeUnknown
	}
	classified := errors.Classify(stderrors.New(sh.LastError))
	return errors.EnvelopeTypeOf(classified.Code)
}

// execute performs one action. resolved means the service is healthy
// again or a mitigation has been applied; terminal means the playbook
// must stop regardless.
func (r *Runner) execute(ctx context.Context, service string, cb *resilience.CircuitBreaker, action Action, log *slog.Logger) (resolved, terminal bool) {
	switch action {
	case ActionWaitAndRetry, ActionRetryWithBackoff, ActionSwitchEndpoint:
		return r.probe(ctx, service, cb, probeTimeout), false

	case ActionIncreaseTimeout:
		return r.probe(ctx, service, cb, 2*probeTimeout), false

	case ActionSwitchProvider, ActionUseFallback, ActionReduceLoad:
		// Decay the provider's standing so selection reroutes around it.
		if r.fallbacks == nil {
			return false, false
		}
		if r.fallbacks.DecayService(service) == 0 {
			return false, false
		}
		log.Info("rerouted traffic away from service", slog.String("action", string(action)))
		return true, false

	case ActionRefreshCredentials:
		// Credentials live outside the process; nothing to refresh here.
		return false, false

	case ActionAlertAdmin:
		log.Error("manual intervention required, automatic recovery stopped")
		return false, true

	default:
		return false, false
	}
}

// probe runs the service's registered probe through its breaker so a
// success closes the breaker and a failure re-arms it.
func (r *Runner) probe(ctx context.Context, service string, cb *resilience.CircuitBreaker, timeout time.Duration) bool {
	r.mu.Lock()
	probe, ok := r.probes[service]
	r.mu.Unlock()
	if !ok {
		return false
	}

	start := time.Now()
	err := cb.Call(ctx, func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, timeout, probe)
	})
	r.tracker.Record(service, time.Since(start), err)
	return err == nil
}

// allow enforces the per-service attempt budget within the rate window.
func (r *Runner) allow(service string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	recent := r.attempts[service][:0]
	for _, at := range r.attempts[service] {
		if now.Sub(at) < rateWindow {
			recent = append(recent, at)
		}
	}
	if len(recent) >= maxAttempts {
		r.attempts[service] = recent
		return false
	}
	r.attempts[service] = append(recent, now)
	return true
}
