// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package voting implements weighted aggregation of ensemble role
// outputs. Each fulfilled output is scored on model confidence,
// content length, structure, and completeness; scores are normalized
// into weights that sum to one and the highest weight wins. When the
// weighted path cannot produce a winner, a ranked list of simpler
// strategies takes over.
package voting

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"
	"strings"

	"github.com/chorusml/chorus/pkg/core"
	"github.com/chorusml/chorus/pkg/errors"
	"github.com/chorusml/chorus/pkg/resilience"
)

// Strategy names, in default fallback order.
const (
	StrategyWeighted          = "weighted_scoring"
	StrategyHighestConfidence = "highest_confidence"
	StrategySimpleMajority    = "simple_majority"
	StrategyWeightedRandom    = "weighted_random"
	StrategyFirstAvailable    = "first_available"
)

// CatalogAlternatives is the default voting fallback catalog, ready to
// register with a fallback manager.
func CatalogAlternatives() []resilience.Alternative {
	return []resilience.Alternative{
		{Name: StrategyHighestConfidence, Priority: 1, BaselineQuality: 0.8},
		{Name: StrategySimpleMajority, Priority: 2, BaselineQuality: 0.6},
		{Name: StrategyWeightedRandom, Priority: 3, BaselineQuality: 0.4},
		{Name: StrategyFirstAvailable, Priority: 4, BaselineQuality: 0.2},
	}
}

// Engine scores role outputs and elects a winner.
type Engine struct {
	fallbacks *resilience.Manager
}

// NewEngine creates a voting engine. The fallback manager orders the
// degraded strategies; nil falls back to the built-in catalog order.
func NewEngine(fallbacks *resilience.Manager) *Engine {
	return &Engine{fallbacks: fallbacks}
}

// Vote aggregates role outputs into a voting result. The result always
// satisfies sum(weights) == 1 when any weight exists, and the winner is
// a fulfilled role whenever one is present.
func (e *Engine) Vote(outputs []core.RoleOutput) (*core.VotingResult, error) {
	fulfilled := core.FulfilledOutputs(outputs)
	if len(fulfilled) > 0 {
		if result := weightedVote(fulfilled); result != nil {
			return result, nil
		}
	}
	return e.fallbackVote(outputs)
}

// weightedVote runs the primary scoring path. Returns nil when no
// output earns a positive score.
func weightedVote(fulfilled []core.RoleOutput) *core.VotingResult {
	scores := make(map[string]float64, len(fulfilled))
	var total float64
	for _, out := range fulfilled {
		s := scoreOutput(out)
		scores[out.Role] = s
		total += s
	}
	if total <= 0 {
		return nil
	}

	weights := make(map[string]float64, len(scores))
	for role, s := range scores {
		weights[role] = s / total
	}

	winner := argmax(weights)
	confidence := weights[winner]

	return &core.VotingResult{
		Winner:     winner,
		Confidence: confidence,
		Consensus:  consensusLabel(confidence),
		Weights:    weights,
		Strategy:   StrategyWeighted,
	}
}

// scoreOutput combines the signals of one fulfilled output into [0,1].
func scoreOutput(out core.RoleOutput) float64 {
	return 0.5*clamp01(out.Confidence) +
		0.2*lengthScore(out.Content) +
		0.15*structureScore(out.Content) +
		0.15*completenessScore(out.Content)
}

// lengthScore prefers answers between 50 and 2000 characters. Shorter
// answers ramp up linearly; longer ones decay toward a floor.
func lengthScore(content string) float64 {
	n := len(content)
	switch {
	case n >= 50 && n <= 2000:
		return 1.0
	case n < 50:
		return float64(n) / 50
	default:
		return math.Max(0.2, 2000/float64(n))
	}
}

// structureScore rewards lists and paragraph breaks.
func structureScore(content string) float64 {
	var s float64
	if strings.Contains(content, "\n\n") {
		s += 0.5
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || hasOrderedPrefix(trimmed) {
			s += 0.5
			break
		}
	}
	if s > 1 {
		s = 1
	}
	return s
}

func hasOrderedPrefix(line string) bool {
	if len(line) < 3 {
		return false
	}
	return line[0] >= '1' && line[0] <= '9' && (line[1] == '.' || line[1] == ')') && line[2] == ' '
}

// completenessScore checks whether the answer ends like a finished
// sentence.
func completenessScore(content string) float64 {
	trimmed := strings.TrimRight(content, " \t\n")
	if trimmed == "" {
		return 0
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?', ':', '`':
		return 1.0
	default:
		return 0.4
	}
}

// Fallback elects a winner through the degraded strategy catalog
// directly, skipping the weighted path. Used when complex voting is
// restricted.
func (e *Engine) Fallback(outputs []core.RoleOutput) (*core.VotingResult, error) {
	return e.fallbackVote(outputs)
}

// fallbackVote walks the degraded strategy catalog in order until one
// produces a result.
func (e *Engine) fallbackVote(outputs []core.RoleOutput) (*core.VotingResult, error) {
	strategies := defaultStrategyOrder()
	if e.fallbacks != nil {
		if candidates := e.fallbacks.Candidates(resilience.DomainVoting); len(candidates) > 0 {
			strategies = strategies[:0]
			for _, alt := range candidates {
				strategies = append(strategies, alt.Name)
			}
		}
	}

	for _, name := range strategies {
		result := runStrategy(name, outputs)
		if e.fallbacks != nil {
			e.fallbacks.RecordOutcome(resilience.DomainVoting, name, result != nil)
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, errors.New(errors.CodeVotingError, "no voting strategy produced a winner", nil)
}

func defaultStrategyOrder() []string {
	return []string{
		StrategyHighestConfidence,
		StrategySimpleMajority,
		StrategyWeightedRandom,
		StrategyFirstAvailable,
	}
}

// runStrategy executes one degraded strategy. A nil result means the
// strategy could not elect a winner from these outputs.
func runStrategy(name string, outputs []core.RoleOutput) *core.VotingResult {
	fulfilled := core.FulfilledOutputs(outputs)
	switch name {
	case StrategyHighestConfidence:
		return highestConfidence(fulfilled)
	case StrategySimpleMajority:
		return simpleMajority(fulfilled)
	case StrategyWeightedRandom:
		return weightedRandom(fulfilled)
	case StrategyFirstAvailable:
		return firstAvailable(outputs)
	default:
		return nil
	}
}

func highestConfidence(fulfilled []core.RoleOutput) *core.VotingResult {
	if len(fulfilled) == 0 {
		return nil
	}
	best := fulfilled[0]
	for _, out := range fulfilled[1:] {
		if out.Confidence > best.Confidence ||
			(out.Confidence == best.Confidence && out.Role < best.Role) {
			best = out
		}
	}
	return singleWinner(best.Role, clamp01(best.Confidence), core.ConsensusFallback, StrategyHighestConfidence)
}

// simpleMajority groups identical normalized answers; the largest group
// wins when it holds a strict majority.
func simpleMajority(fulfilled []core.RoleOutput) *core.VotingResult {
	if len(fulfilled) == 0 {
		return nil
	}
	groups := make(map[string][]string)
	for _, out := range fulfilled {
		norm := strings.ToLower(strings.TrimSpace(out.Content))
		groups[norm] = append(groups[norm], out.Role)
	}

	var bestRoles []string
	for _, roles := range groups {
		if len(roles) > len(bestRoles) {
			sort.Strings(roles)
			bestRoles = roles
		}
	}
	if len(bestRoles)*2 <= len(fulfilled) {
		return nil
	}
	confidence := float64(len(bestRoles)) / float64(len(fulfilled))
	return singleWinner(bestRoles[0], confidence, core.ConsensusSimpleMajority, StrategySimpleMajority)
}

// weightedRandom picks a winner pseudo-randomly, seeded from the
// content set so the choice is stable for identical inputs.
func weightedRandom(fulfilled []core.RoleOutput) *core.VotingResult {
	if len(fulfilled) == 0 {
		return nil
	}
	sorted := make([]core.RoleOutput, len(fulfilled))
	copy(sorted, fulfilled)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Role < sorted[j].Role })

	h := sha256.New()
	for _, out := range sorted {
		h.Write([]byte(out.Role))
		h.Write([]byte{0})
		h.Write([]byte(out.Content))
		h.Write([]byte{0})
	}
	seed := binary.BigEndian.Uint64(h.Sum(nil)[:8])
	pick := sorted[seed%uint64(len(sorted))]
	return singleWinner(pick.Role, 0.3, core.ConsensusFallback, StrategyWeightedRandom)
}

// firstAvailable is the last resort: the first output in role order,
// fulfilled or not, with minimal confidence.
func firstAvailable(outputs []core.RoleOutput) *core.VotingResult {
	if len(outputs) == 0 {
		return nil
	}
	first := outputs[0]
	for _, out := range outputs[1:] {
		if out.Role < first.Role {
			first = out
		}
	}
	return singleWinner(first.Role, 0.1, core.ConsensusFallback, StrategyFirstAvailable)
}

func singleWinner(role string, confidence float64, consensus string, strategy string) *core.VotingResult {
	return &core.VotingResult{
		Winner:     role,
		Confidence: confidence,
		Consensus:  consensus,
		Weights:    map[string]float64{role: 1.0},
		Strategy:   strategy,
	}
}

// argmax returns the key with the largest weight, breaking ties by
// role name so the result is deterministic.
func argmax(weights map[string]float64) string {
	var winner string
	best := math.Inf(-1)
	for role, w := range weights {
		if w > best || (w == best && role < winner) {
			winner = role
			best = w
		}
	}
	return winner
}

func consensusLabel(winnerWeight float64) string {
	switch {
	case winnerWeight >= 0.6:
		return core.ConsensusHigh
	case winnerWeight >= 0.4:
		return core.ConsensusModerate
	default:
		return core.ConsensusLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
