// Package risk maps a classification to a discrete risk level.
//
// The species table is fixed. The only mutable input is the confidence
// threshold held in State, which the feedback controller adjusts between runs.
package risk

import (
	"sync"

	"plantguard/internal/logging"
	"plantguard/internal/types"
)

// DefaultThreshold is the initial confidence threshold.
const DefaultThreshold = 0.6

var speciesRisk = map[types.Species]types.RiskLevel{
	types.SpeciesLantana:     types.RiskHigh,
	types.SpeciesParthenium:  types.RiskHigh,
	types.SpeciesNeltuma:     types.RiskModerate,
	types.SpeciesNonInvasive: types.RiskLow,
}

// Assess returns the risk level for a classification under the given threshold.
// Confidence below the threshold is UNCERTAIN regardless of species; otherwise
// the species table decides and unrecognized species are UNKNOWN.
func Assess(result types.ClassificationResult, threshold float64) types.RiskLevel {
	if result.Confidence < threshold {
		return types.RiskUncertain
	}
	if level, ok := speciesRisk[result.Species()]; ok {
		return level
	}
	return types.RiskUnknown
}

// State holds the confidence threshold shared between the policy (reader)
// and the feedback controller (writer). No range is enforced.
type State struct {
	mu        sync.RWMutex
	threshold float64
}

// NewState creates a State with the given initial threshold.
func NewState(threshold float64) *State {
	return &State{threshold: threshold}
}

// Threshold returns the current threshold.
func (s *State) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SetThreshold replaces the threshold. Only the feedback controller calls this.
func (s *State) SetThreshold(threshold float64) {
	s.mu.Lock()
	s.threshold = threshold
	s.mu.Unlock()
}

// Policy assesses classifications against a shared State.
type Policy struct {
	state *State
}

// NewPolicy creates a policy reading from state.
func NewPolicy(state *State) *Policy {
	return &Policy{state: state}
}

// Assess evaluates result against the current threshold.
func (p *Policy) Assess(result types.ClassificationResult) types.RiskLevel {
	threshold := p.state.Threshold()
	level := Assess(result, threshold)
	logging.RiskDebug("assess %s threshold=%.2f -> %s", result, threshold, level)
	return level
}

// State returns the policy state.
func (p *Policy) State() *State {
	return p.state
}
