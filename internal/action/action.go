// Package action turns a risk level into guidance text for the user.
package action

import "plantguard/internal/types"

// Guidance texts, one per risk level.
const (
	TextHigh         = "🚨 Remove immediately.\nUse mechanical removal or approved herbicide."
	TextModerate     = "⚠ Monitor growth.\nRestrict spread and prune regularly."
	TextLow          = "✅ No removal needed.\nMonitor periodically."
	TextUncertain    = "⚠ Low confidence.\nPlease retake clearer image."
	TextUnrecognized = "Species not recognized."
)

// Suggest returns the recommended action for a risk level.
// UNKNOWN and any undefined level get the not-recognized text.
func Suggest(level types.RiskLevel) string {
	switch level {
	case types.RiskHigh:
		return TextHigh
	case types.RiskModerate:
		return TextModerate
	case types.RiskLow:
		return TextLow
	case types.RiskUncertain:
		return TextUncertain
	default:
		return TextUnrecognized
	}
}

// Decide pairs a risk level with its recommendation.
func Decide(level types.RiskLevel) types.AgentDecision {
	return types.AgentDecision{Risk: level, Recommendation: Suggest(level)}
}
