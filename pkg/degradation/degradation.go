// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package degradation maintains the process-wide capability level. On
// each assessment it folds per-service health into one weighted score,
// maps that score to a level, and derives the feature restrictions the
// rest of the system consults before taking an expensive path.
package degradation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chorusml/chorus/pkg/health"
	"github.com/chorusml/chorus/pkg/resilience"
)

// Level is the system capability level. Lower is healthier.
type Level int

const (
	LevelFull Level = iota
	LevelEnhanced
	LevelStandard
	LevelBasic
	LevelMinimal
	LevelEmergency
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelFull:
		return "full"
	case LevelEnhanced:
		return "enhanced"
	case LevelStandard:
		return "standard"
	case LevelBasic:
		return "basic"
	case LevelMinimal:
		return "minimal"
	default:
		return "emergency"
	}
}

// Feature names other components gate on.
const (
	FeatureDetailedAnalytics = "detailed_analytics"
	FeatureOptimization      = "response_optimization"
	FeatureEnhancedSynthesis = "enhanced_synthesis"
	FeatureComplexVoting     = "complex_voting"
	FeatureMemory            = "memory"
	FeatureVoting            = "voting"
	FeatureCaching           = "caching"
	FeatureNonEssential      = "non_essential"
)

// restrictionsFor lists the features disabled at each level.
// Restrictions accumulate: each level carries everything above it.
func restrictionsFor(l Level) map[string]bool {
	r := make(map[string]bool)
	if l >= LevelEnhanced {
		r[FeatureDetailedAnalytics] = true
		r[FeatureOptimization] = true
	}
	if l >= LevelStandard {
		r[FeatureEnhancedSynthesis] = true
		r[FeatureComplexVoting] = true
	}
	if l >= LevelBasic {
		r[FeatureMemory] = true
		r[FeatureVoting] = true
		r[FeatureCaching] = true
	}
	if l >= LevelMinimal {
		r[FeatureNonEssential] = true
	}
	return r
}

// breakerOpenMultiplier scales a service's health while its breaker is
// open.
const breakerOpenMultiplier = 0.1

// recoveryFloor is the overall score required before the level may step
// back up.
const recoveryFloor = 0.7

// Manager owns the degradation state. One instance per process.
type Manager struct {
	mu           sync.Mutex
	tracker      *health.Tracker
	breakers     *resilience.Registry
	logger       *slog.Logger
	enabled      bool
	level        Level
	restrictions map[string]bool
	lastAssessed time.Time
	lastScore    float64
}

// NewManager creates a degradation manager over the given health
// tracker and breaker registry.
func NewManager(tracker *health.Tracker, breakers *resilience.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tracker:      tracker,
		breakers:     breakers,
		logger:       logger,
		enabled:      true,
		level:        LevelFull,
		restrictions: restrictionsFor(LevelFull),
	}
}

// SetEnabled toggles assessment. While disabled the level pins to full.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	if !enabled {
		m.setLevelLocked(LevelFull, 1.0)
	}
}

// Level returns the current capability level.
func (m *Manager) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// IsFeatureRestricted reports whether a feature is disabled at the
// current level.
func (m *Manager) IsFeatureRestricted(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restrictions[name]
}

// ActiveRestrictions returns a copy of the restricted feature set.
func (m *Manager) ActiveRestrictions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.restrictions))
	for name := range m.restrictions {
		out = append(out, name)
	}
	return out
}

// OverallScore returns the score computed by the last assessment.
func (m *Manager) OverallScore() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastScore
}

// Assess recomputes the overall health score and adjusts the level.
// Degradation is immediate; recovery moves one level at a time and
// only while the score stays above the recovery floor.
func (m *Manager) Assess() Level {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return m.level
	}

	score, coreFailing := m.overallLocked()
	m.lastScore = score
	m.lastAssessed = time.Now()

	target := levelForScore(score, coreFailing)
	switch {
	case target > m.level:
		m.setLevelLocked(target, score)
	case target < m.level && score > recoveryFloor:
		m.setLevelLocked(m.level-1, score)
	}
	return m.level
}

// overallLocked folds the tracker snapshot into one weighted score.
// A service with an open breaker contributes a tenth of its health;
// an open breaker on a core service marks the system core-failing.
func (m *Manager) overallLocked() (float64, bool) {
	snapshot := m.tracker.Snapshot()
	if len(snapshot) == 0 {
		return 1.0, false
	}

	var weighted, totalWeight float64
	coreFailing := false
	for _, sh := range snapshot {
		score := health.Composite(sh)
		if m.breakers != nil && m.breakers.StateOf(sh.Name) == resilience.StateOpen {
			score *= breakerOpenMultiplier
			if sh.Criticality == health.Core {
				coreFailing = true
			}
		}
		w := sh.Criticality.Weight()
		weighted += score * w
		totalWeight += w
	}
	return weighted / totalWeight, coreFailing
}

func levelForScore(score float64, coreFailing bool) Level {
	if coreFailing {
		return LevelEmergency
	}
	switch {
	case score >= 0.8:
		return LevelFull
	case score >= 0.6:
		return LevelEnhanced
	case score >= 0.4:
		return LevelStandard
	case score >= 0.2:
		return LevelBasic
	case score >= 0.1:
		return LevelMinimal
	default:
		return LevelEmergency
	}
}

func (m *Manager) setLevelLocked(level Level, score float64) {
	if level == m.level {
		return
	}
	m.logger.Info("degradation level changed",
		slog.String("from", m.level.String()),
		slog.String("to", level.String()),
		slog.Float64("overall_score", score),
	)
	m.level = level
	m.restrictions = restrictionsFor(level)
}
