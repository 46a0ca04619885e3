// SPDX-License-Identifier: Apache-2.0
package resilience

import "sync"

// Registry holds one circuit breaker per named service. It is a
// process-wide singleton injected into components that need it.
type Registry struct {
	mu       sync.Mutex
	defaults BreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a breaker registry. The defaults apply to every
// breaker the registry creates; Name is overridden per service.
func NewRegistry(defaults BreakerConfig) *Registry {
	return &Registry{
		defaults: defaults,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for the named service, creating it on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cfg := r.defaults
	cfg.Name = name
	cb := NewCircuitBreaker(cfg)
	r.breakers[name] = cb
	return cb
}

// StateOf returns the state of the named breaker. Services never seen
// by the registry report closed.
func (r *Registry) StateOf(name string) State {
	r.mu.Lock()
	cb, ok := r.breakers[name]
	r.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return cb.State()
}

// All returns a snapshot of the registered breakers.
func (r *Registry) All() []*CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		out = append(out, cb)
	}
	return out
}
