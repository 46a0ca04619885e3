// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package ensemble

import (
	"sort"
	"sync"

	"github.com/chorusml/chorus/pkg/core"
	"github.com/chorusml/chorus/pkg/health"
	"github.com/chorusml/chorus/pkg/llm"
	"github.com/chorusml/chorus/pkg/resilience"
)

// Logical ensemble roles.
const (
	RoleGPT4o  = "gpt4o"
	RoleClaude = "claude"
	RoleGemini = "gemini"
	RoleXAI    = "xai"
)

// Binding attaches a logical role to its primary upstream and the
// ranked alternates tried when the primary degrades.
type Binding struct {
	// Role is the logical name (gpt4o, claude, gemini, xai).
	Role string

	// Provider and Model identify the primary upstream.
	Provider string
	Model    string

	// PremiumOnly hides the role from the free tier.
	PremiumOnly bool

	// Criticality weighs the primary provider in the overall health
	// assessment. The zero value counts as Important.
	Criticality health.Criticality

	// Alternates are tried after the primary, in priority order.
	// Priorities below 1 are treated as registration order.
	Alternates []resilience.Alternative
}

// providerCriticality resolves the binding's declared criticality,
// defaulting unset bindings to Important. A role's primary upstream is
// never a mere enhancement.
func (b Binding) providerCriticality() health.Criticality {
	if b.Criticality == health.Enhancement {
		return health.Important
	}
	return b.Criticality
}

// primaryAlternative is the binding's own upstream as the head of its
// fallback catalog.
func (b Binding) primaryAlternative() resilience.Alternative {
	return resilience.Alternative{
		Name:            b.Provider + "/" + b.Model,
		Provider:        b.Provider,
		Model:           b.Model,
		Priority:        0,
		BaselineQuality: 0.95,
	}
}

// Roster holds the role bindings and the provider clients backing
// them. One roster per engine.
type Roster struct {
	mu        sync.Mutex
	bindings  map[string]Binding
	providers map[string]llm.Provider
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{
		bindings:  make(map[string]Binding),
		providers: make(map[string]llm.Provider),
	}
}

// BindProvider registers the client for a provider name. Bindings and
// alternates referring to unknown providers are skipped at dispatch.
func (r *Roster) BindProvider(name string, p llm.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Bind installs or replaces a role binding.
func (r *Roster) Bind(b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[b.Role] = b
}

// Provider returns the client for a provider name.
func (r *Roster) Provider(name string) (llm.Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	return p, ok
}

// Binding returns the binding for a role.
func (r *Roster) Binding(role string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[role]
	return b, ok
}

// RolesFor returns the bindings enabled for a tier, sorted by role
// name. The free tier sees only non-premium roles.
func (r *Roster) RolesFor(tier core.Tier) []Binding {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		if b.PremiumOnly && tier != core.TierPremium {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// Catalog returns every binding, sorted by role name.
func (r *Roster) Catalog() []Binding {
	return r.RolesFor(core.TierPremium)
}

// DefaultBindings is the standard four-role ensemble. The free tier
// runs gpt4o and gemini; premium adds claude and xai. Each role falls
// back to 2-3 alternates on other providers. OpenAI is declared core:
// it backs the default synthesizer on top of its own role, so losing
// it degrades the whole pipeline, not one voice.
func DefaultBindings() []Binding {
	return []Binding{
		{
			Role: RoleGPT4o, Provider: "openai", Model: "gpt-4o",
			Criticality: health.Core,
			Alternates: []resilience.Alternative{
				{Name: "openai/gpt-4o-mini", Provider: "openai", Model: "gpt-4o-mini", Priority: 1, BaselineQuality: 0.85},
				{Name: "anthropic/claude-haiku-4-5", Provider: "anthropic", Model: "claude-haiku-4-5", Priority: 2, BaselineQuality: 0.8},
			},
		},
		{
			Role: RoleClaude, Provider: "anthropic", Model: "claude-sonnet-4-5", PremiumOnly: true,
			Alternates: []resilience.Alternative{
				{Name: "anthropic/claude-haiku-4-5", Provider: "anthropic", Model: "claude-haiku-4-5", Priority: 1, BaselineQuality: 0.85},
				{Name: "openai/gpt-4o", Provider: "openai", Model: "gpt-4o", Priority: 2, BaselineQuality: 0.8},
			},
		},
		{
			Role: RoleGemini, Provider: "gemini", Model: "gemini-2.5-flash",
			Alternates: []resilience.Alternative{
				{Name: "gemini/gemini-2.0-flash", Provider: "gemini", Model: "gemini-2.0-flash", Priority: 1, BaselineQuality: 0.8},
				{Name: "openai/gpt-4o-mini", Provider: "openai", Model: "gpt-4o-mini", Priority: 2, BaselineQuality: 0.75},
			},
		},
		{
			Role: RoleXAI, Provider: "xai", Model: "grok-4", PremiumOnly: true,
			Alternates: []resilience.Alternative{
				{Name: "xai/grok-3-mini", Provider: "xai", Model: "grok-3-mini", Priority: 1, BaselineQuality: 0.8},
				{Name: "openai/gpt-4o", Provider: "openai", Model: "gpt-4o", Priority: 2, BaselineQuality: 0.8},
			},
		},
	}
}
