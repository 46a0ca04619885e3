// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/chorusml/chorus/pkg/errors"
)

// Domain names a failure domain with its own ranked fallback catalog.
type Domain string

const (
	// DomainSynthesis ranks synthesis strategies.
	DomainSynthesis Domain = "synthesis"

	// DomainVoting ranks voting strategies.
	DomainVoting Domain = "voting"

	// DomainStorage ranks result storage strategies.
	DomainStorage Domain = "storage"
)

// ModelDomain returns the fallback domain for a logical ensemble role.
func ModelDomain(role string) Domain {
	return Domain("model:" + role)
}

// Alternative is one ranked entry in a fallback catalog.
type Alternative struct {
	// Name identifies the alternative within its domain.
	Name string

	// Provider and Model bind model-domain alternatives to a concrete
	// upstream. Empty for strategy domains (synthesis, voting, storage).
	Provider string
	Model    string

	// Priority orders alternatives; lower is preferred.
	Priority int

	// BaselineQuality caps the confidence of results produced through
	// this alternative, in [0,1].
	BaselineQuality float64
}

// breakerKey is the circuit breaker name guarding this alternative.
func (a Alternative) breakerKey() string {
	if a.Provider != "" {
		return a.Provider
	}
	return a.Name
}

// UsageStats records how an alternative has been exercised.
type UsageStats struct {
	Uses      int
	Successes int
	LastUsed  time.Time
}

// minHealthScore is the floor below which an alternative is skipped.
const minHealthScore = 0.3

// Manager selects ranked fallbacks per failure domain. Selection skips
// alternatives whose breaker is open or whose health score has decayed,
// then orders by (priority asc, health desc).
type Manager struct {
	mu       sync.Mutex
	breakers *Registry
	catalogs map[Domain][]Alternative
	scores   map[Domain]map[string]float64
	usage    map[Domain]map[string]*UsageStats
}

// NewManager creates a fallback manager consulting the given breaker
// registry. A nil registry disables breaker filtering.
func NewManager(breakers *Registry) *Manager {
	return &Manager{
		breakers: breakers,
		catalogs: make(map[Domain][]Alternative),
		scores:   make(map[Domain]map[string]float64),
		usage:    make(map[Domain]map[string]*UsageStats),
	}
}

// Register installs or extends the catalog for a domain.
func (m *Manager) Register(domain Domain, alts ...Alternative) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogs[domain] = append(m.catalogs[domain], alts...)
}

// Candidates returns the viable alternatives for a domain, best first.
func (m *Manager) Candidates(domain Domain) []Alternative {
	m.mu.Lock()
	defer m.mu.Unlock()

	catalog := m.catalogs[domain]
	out := make([]Alternative, 0, len(catalog))
	for _, alt := range catalog {
		if m.breakers != nil && m.breakers.StateOf(alt.breakerKey()) == StateOpen {
			continue
		}
		if m.scoreLocked(domain, alt.Name) < minHealthScore {
			continue
		}
		out = append(out, alt)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return m.scoreLocked(domain, out[i].Name) > m.scoreLocked(domain, out[j].Name)
	})
	return out
}

// Select returns the best viable alternative for a domain.
func (m *Manager) Select(domain Domain) (Alternative, bool) {
	candidates := m.Candidates(domain)
	if len(candidates) == 0 {
		return Alternative{}, false
	}
	return candidates[0], true
}

// RecordOutcome updates the health score and usage history of an
// alternative. Scores follow an EMA: success moves toward 1, failure
// decays toward 0.
func (m *Manager) RecordOutcome(domain Domain, name string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	score := m.scoreLocked(domain, name)
	if success {
		score = 0.9*score + 0.1
	} else {
		score = 0.9 * score
	}
	if m.scores[domain] == nil {
		m.scores[domain] = make(map[string]float64)
	}
	m.scores[domain][name] = score

	if m.usage[domain] == nil {
		m.usage[domain] = make(map[string]*UsageStats)
	}
	u, ok := m.usage[domain][name]
	if !ok {
		u = &UsageStats{}
		m.usage[domain][name] = u
	}
	u.Uses++
	if success {
		u.Successes++
	}
	u.LastUsed = time.Now()
}

// HealthScore returns the current EMA score of an alternative.
// Unseen alternatives start at 1.
func (m *Manager) HealthScore(domain Domain, name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scoreLocked(domain, name)
}

// Usage returns a copy of the usage history for an alternative.
func (m *Manager) Usage(domain Domain, name string) UsageStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.usage[domain][name]; ok {
		return *u
	}
	return UsageStats{}
}

// DecayService decays the health of every alternative backed by the
// named service, across all domains. Used by recovery automation to
// reroute selection away from a misbehaving upstream. Returns the
// number of alternatives touched.
func (m *Manager) DecayService(service string) int {
	m.mu.Lock()
	touched := make(map[Domain][]string)
	for domain, catalog := range m.catalogs {
		for _, alt := range catalog {
			if alt.Name == service || alt.Provider == service {
				touched[domain] = append(touched[domain], alt.Name)
			}
		}
	}
	m.mu.Unlock()

	n := 0
	for domain, names := range touched {
		for _, name := range names {
			m.RecordOutcome(domain, name, false)
			n++
		}
	}
	return n
}

func (m *Manager) scoreLocked(domain Domain, name string) float64 {
	if s, ok := m.scores[domain][name]; ok {
		return s
	}
	return 1.0
}

// ErrExhausted signals that every alternative in a domain failed and
// the caller must fall back to the emergency path.
var ErrExhausted = errors.New(errors.CodeInternal, "all fallback alternatives exhausted", nil).
	WithOperational(true).
	WithRetryable(false)
