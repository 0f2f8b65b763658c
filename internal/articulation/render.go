// Package articulation turns pipeline outcomes into the text shown to the user.
package articulation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"plantguard/internal/feedback"
	"plantguard/internal/pipeline"
	"plantguard/internal/types"
)

// Risk colors.
var (
	ColorHigh      = lipgloss.Color("#e53935") // red
	ColorModerate  = lipgloss.Color("#FFC107") // yellow
	ColorLow       = lipgloss.Color("#8BC34A") // lime green
	ColorUncertain = lipgloss.Color("#2196F3") // blue
	ColorUnknown   = lipgloss.Color("#8a94a6") // grey
)

// Renderer formats outcomes. The zero value is not usable; use Plain or Styled.
type Renderer struct {
	styled bool
	label  lipgloss.Style
	risk   map[types.RiskLevel]lipgloss.Style
	muted  lipgloss.Style
}

// Plain returns a renderer that emits no terminal styling.
func Plain() *Renderer {
	return &Renderer{}
}

// Styled returns a renderer that colors the risk level and bolds labels.
func Styled() *Renderer {
	risk := make(map[types.RiskLevel]lipgloss.Style, len(types.RiskLevels))
	for level, color := range map[types.RiskLevel]lipgloss.Color{
		types.RiskHigh:      ColorHigh,
		types.RiskModerate:  ColorModerate,
		types.RiskLow:       ColorLow,
		types.RiskUncertain: ColorUncertain,
		types.RiskUnknown:   ColorUnknown,
	} {
		risk[level] = lipgloss.NewStyle().Bold(true).Foreground(color)
	}
	return &Renderer{
		styled: true,
		label:  lipgloss.NewStyle().Bold(true),
		risk:   risk,
		muted:  lipgloss.NewStyle().Foreground(ColorUnknown),
	}
}

func (r *Renderer) labelText(s string) string {
	if !r.styled {
		return s
	}
	return r.label.Render(s)
}

func (r *Renderer) riskText(level types.RiskLevel) string {
	if !r.styled {
		return level.String()
	}
	style, ok := r.risk[level]
	if !ok {
		style = r.risk[types.RiskUnknown]
	}
	return style.Render(level.String())
}

func (r *Renderer) mutedText(s string) string {
	if !r.styled {
		return s
	}
	return r.muted.Render(s)
}

// Outcome renders the classification report:
//
//	🌿 Species: lantana
//	📊 Confidence: 90.00%
//	⚠ Risk Level: HIGH
//
//	<recommendation>
func (r *Renderer) Outcome(out pipeline.Outcome) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", r.labelText("🌿 Species:"), out.Result.Label)
	fmt.Fprintf(&sb, "%s %.2f%%\n", r.labelText("📊 Confidence:"), out.Result.Confidence*100)
	fmt.Fprintf(&sb, "%s %s\n\n", r.labelText("⚠ Risk Level:"), r.riskText(out.Risk))
	sb.WriteString(out.Recommendation)
	return sb.String()
}

// Location renders the addendum appended once a HIGH-risk sighting is tagged.
func (r *Renderer) Location(s types.Sighting) string {
	return fmt.Sprintf("\n\n%s\nLatitude: %s\nLongitude: %s",
		r.labelText("📍 Fresh GPS Location:"), formatCoord(s.Latitude), formatCoord(s.Longitude))
}

// TaggingFailed renders the note shown when a HIGH-risk sighting could not be tagged.
func (r *Renderer) TaggingFailed(err error) string {
	return "\n\n" + r.mutedText(fmt.Sprintf("📍 Location unavailable: %v", err))
}

// Feedback renders the controller state after a feedback signal.
func (r *Renderer) Feedback(u feedback.Update) string {
	msg := fmt.Sprintf("Feedback %s: score %d, threshold %.2f", u.Signal, u.Score, u.Threshold)
	if u.Changed {
		msg += " (changed)"
	}
	return msg
}

// Sightings renders a table of recorded sightings, one per line.
func (r *Renderer) Sightings(list []types.Sighting) string {
	if len(list) == 0 {
		return r.mutedText("No sightings recorded.")
	}
	var sb strings.Builder
	for i, s := range list {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s  %-12s %s, %s",
			s.Time.UTC().Format("2006-01-02 15:04:05"), s.Species, formatCoord(s.Latitude), formatCoord(s.Longitude))
	}
	return sb.String()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Render is Plain().Outcome(out).
func Render(out pipeline.Outcome) string {
	return Plain().Outcome(out)
}

// RenderLocation is Plain().Location(s).
func RenderLocation(s types.Sighting) string {
	return Plain().Location(s)
}
