// SPDX-License-Identifier: Apache-2.0
// Package health tracks per-service health from observed call outcomes.
package health

import (
	"sync"
	"time"
)

// Criticality weighs a service's contribution to the overall score.
type Criticality int

const (
	Enhancement Criticality = iota
	Optional
	Important
	Core
)

// Weight returns the aggregation weight for a criticality class.
func (c Criticality) Weight() float64 {
	switch c {
	case Core:
		return 4
	case Important:
		return 3
	case Optional:
		return 2
	default:
		return 1
	}
}

// latencyCeiling is the latency treated as fully unhealthy.
const latencyCeiling = 10 * time.Second

// ServiceHealth is a snapshot of one service's health record.
type ServiceHealth struct {
	Name        string
	Criticality Criticality
	SuccessRate float64
	AvgLatency  time.Duration
	LastError   string
	LastErrorAt time.Time
	Score       float64
	Observed    uint64
}

type record struct {
	criticality  Criticality
	score        float64
	successes    uint64
	failures     uint64
	totalLatency time.Duration
	lastError    string
	lastErrorAt  time.Time
}

// Tracker is a process-wide health score map. Scores follow an EMA
// updated on each outcome; latency and success rate are tracked from
// real observations only.
type Tracker struct {
	mu       sync.Mutex
	services map[string]*record
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{services: make(map[string]*record)}
}

// Declare registers a service with its criticality. Safe to call more
// than once; later calls update the criticality.
func (t *Tracker) Declare(name string, c Criticality) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.get(name)
	r.criticality = c
}

// Record observes one call outcome for a service.
func (t *Tracker) Record(name string, latency time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.get(name)
	r.totalLatency += latency
	if err == nil {
		r.successes++
		r.score = 0.9*r.score + 0.1
		// A success supersedes the last error; recovery playbooks must
		// not classify from an error the service already cleared.
		r.lastError = ""
		return
	}
	r.failures++
	r.score = 0.9 * r.score
	r.lastError = err.Error()
	r.lastErrorAt = time.Now()
}

// Score returns the current EMA score of a service. Unseen services
// report 1.
func (t *Tracker) Score(name string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.services[name]; ok {
		return r.score
	}
	return 1.0
}

// Snapshot returns health records for all known services.
func (t *Tracker) Snapshot() []ServiceHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ServiceHealth, 0, len(t.services))
	for name, r := range t.services {
		out = append(out, snapshotOf(name, r))
	}
	return out
}

// Service returns the health record of one service.
func (t *Tracker) Service(name string) (ServiceHealth, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.services[name]
	if !ok {
		return ServiceHealth{}, false
	}
	return snapshotOf(name, r), true
}

func snapshotOf(name string, r *record) ServiceHealth {
	total := r.successes + r.failures
	sh := ServiceHealth{
		Name:        name,
		Criticality: r.criticality,
		Score:       r.score,
		LastError:   r.lastError,
		LastErrorAt: r.lastErrorAt,
		Observed:    total,
	}
	if total > 0 {
		sh.SuccessRate = float64(r.successes) / float64(total)
		sh.AvgLatency = r.totalLatency / time.Duration(total)
	} else {
		sh.SuccessRate = 1.0
	}
	return sh
}

// Composite combines success rate, latency against the 10s ceiling and
// the EMA score into a single [0,1] health value for a snapshot.
func Composite(sh ServiceHealth) float64 {
	latencyFactor := 1.0
	if sh.AvgLatency > 0 {
		ratio := float64(sh.AvgLatency) / float64(latencyCeiling)
		if ratio > 1 {
			ratio = 1
		}
		latencyFactor = 1 - ratio
	}
	return 0.5*sh.SuccessRate + 0.2*latencyFactor + 0.3*sh.Score
}

func (t *Tracker) get(name string) *record {
	r, ok := t.services[name]
	if !ok {
		r = &record{score: 1.0, criticality: Optional}
		t.services[name] = r
	}
	return r
}
