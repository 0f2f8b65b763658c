// Package types provides the shared value types of the decision pipeline.
// Types in this package are plain data with no dependencies on other plantguard packages,
// so classifier, risk, feedback, location, store and pipeline can all import them.
package types

import "fmt"

// =============================================================================
// SPECIES
// =============================================================================

// Species is the closed vocabulary of plants the classifier is trained on.
// Any label outside the vocabulary maps to SpeciesOther.
type Species int

const (
	SpeciesOther Species = iota
	SpeciesLantana
	SpeciesNeltuma
	SpeciesNonInvasive
	SpeciesParthenium
)

// Vocabulary lists the classifier labels in model output order.
var Vocabulary = []string{"lantana", "neltuma", "non_invasive", "parthenium"}

var speciesByLabel = map[string]Species{
	"lantana":      SpeciesLantana,
	"neltuma":      SpeciesNeltuma,
	"non_invasive": SpeciesNonInvasive,
	"parthenium":   SpeciesParthenium,
}

// ParseSpecies maps a classifier label to its Species. Matching is exact;
// unrecognized labels yield SpeciesOther.
func ParseSpecies(label string) Species {
	if s, ok := speciesByLabel[label]; ok {
		return s
	}
	return SpeciesOther
}

// String returns the classifier label for the species.
func (s Species) String() string {
	switch s {
	case SpeciesLantana:
		return "lantana"
	case SpeciesNeltuma:
		return "neltuma"
	case SpeciesNonInvasive:
		return "non_invasive"
	case SpeciesParthenium:
		return "parthenium"
	default:
		return "other"
	}
}

// Known reports whether the species is part of the vocabulary.
func (s Species) Known() bool {
	return s != SpeciesOther
}

// =============================================================================
// RISK LEVEL
// =============================================================================

// RiskLevel is the discrete severity assigned to a classification.
// The zero value is RiskUnknown.
type RiskLevel int

const (
	RiskUnknown RiskLevel = iota
	RiskHigh
	RiskModerate
	RiskLow
	RiskUncertain
)

// RiskLevels lists every defined level.
var RiskLevels = []RiskLevel{RiskHigh, RiskModerate, RiskLow, RiskUncertain, RiskUnknown}

func (r RiskLevel) String() string {
	switch r {
	case RiskHigh:
		return "HIGH"
	case RiskModerate:
		return "MODERATE"
	case RiskLow:
		return "LOW"
	case RiskUncertain:
		return "UNCERTAIN"
	case RiskUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("RiskLevel(%d)", int(r))
	}
}

// =============================================================================
// CLASSIFICATION RESULT / DECISION
// =============================================================================

// ClassificationResult is the (label, confidence) pair produced by the
// classifier for one captured image. It is never mutated after creation.
type ClassificationResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// NewClassificationResult builds a result.
func NewClassificationResult(label string, confidence float64) ClassificationResult {
	return ClassificationResult{Label: label, Confidence: confidence}
}

// Species returns the parsed species for the result label.
func (r ClassificationResult) Species() Species {
	return ParseSpecies(r.Label)
}

func (r ClassificationResult) String() string {
	return fmt.Sprintf("%s (%.2f)", r.Label, r.Confidence)
}

// AgentDecision pairs a risk level with the recommended action text.
type AgentDecision struct {
	Risk           RiskLevel `json:"risk"`
	Recommendation string    `json:"recommendation"`
}
