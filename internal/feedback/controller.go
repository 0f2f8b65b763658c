// Package feedback adapts the risk threshold from user corrections.
//
// Correct predictions add Reward to a running score, wrong ones subtract
// Penalty. After every update the score is compared against two bounds:
// below LowerBound the strict threshold is applied, above UpperBound the
// lenient one. Inside the band the threshold is left where it is. The score
// itself is never clamped or reset.
package feedback

import (
	"fmt"
	"strings"
	"sync"

	"plantguard/internal/logging"
)

// Signal is a user correction.
type Signal int

const (
	SignalCorrect Signal = iota
	SignalWrong
)

func (s Signal) String() string {
	switch s {
	case SignalCorrect:
		return "correct"
	case SignalWrong:
		return "wrong"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// ParseSignal parses "correct" or "wrong", ignoring case.
func ParseSignal(s string) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "correct", "right", "yes":
		return SignalCorrect, nil
	case "wrong", "no":
		return SignalWrong, nil
	}
	return 0, fmt.Errorf("unknown feedback signal %q", s)
}

// Settings are the controller's weights and set-points.
type Settings struct {
	Reward           int
	Penalty          int
	LowerBound       int
	UpperBound       int
	StrictThreshold  float64
	LenientThreshold float64
}

// DefaultSettings returns +1/-2 weights with a [-3, 3] band and 0.75/0.55 set-points.
func DefaultSettings() Settings {
	return Settings{
		Reward:           1,
		Penalty:          2,
		LowerBound:       -3,
		UpperBound:       3,
		StrictThreshold:  0.75,
		LenientThreshold: 0.55,
	}
}

// Target is the threshold the controller writes.
type Target interface {
	Threshold() float64
	SetThreshold(float64)
}

// Update describes the controller state after one signal.
type Update struct {
	Signal    Signal
	Score     int
	Threshold float64
	Changed   bool
}

// Controller owns the feedback score and is the only writer of the target threshold.
type Controller struct {
	mu       sync.Mutex
	score    int
	settings Settings
	target   Target
}

// NewController creates a controller with a zero score.
func NewController(target Target, settings Settings) *Controller {
	return &Controller{target: target, settings: settings}
}

// CorrectPrediction records a confirmed-correct prediction.
func (c *Controller) CorrectPrediction() Update {
	return c.Apply(SignalCorrect)
}

// WrongPrediction records a confirmed-wrong prediction.
func (c *Controller) WrongPrediction() Update {
	return c.Apply(SignalWrong)
}

// Apply records a signal and re-evaluates the threshold.
func (c *Controller) Apply(signal Signal) Update {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch signal {
	case SignalCorrect:
		c.score += c.settings.Reward
	case SignalWrong:
		c.score -= c.settings.Penalty
	}

	before := c.target.Threshold()
	after := before
	switch {
	case c.score < c.settings.LowerBound:
		after = c.settings.StrictThreshold
	case c.score > c.settings.UpperBound:
		after = c.settings.LenientThreshold
	}
	if after != before {
		c.target.SetThreshold(after)
		logging.Feedback("score %d crossed band [%d,%d]: threshold %.2f -> %.2f",
			c.score, c.settings.LowerBound, c.settings.UpperBound, before, after)
	} else {
		logging.FeedbackDebug("%s: score=%d threshold=%.2f", signal, c.score, after)
	}

	return Update{Signal: signal, Score: c.score, Threshold: after, Changed: after != before}
}

// Score returns the running score.
func (c *Controller) Score() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.score
}

// Settings returns the active settings.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetSettings replaces the weights and set-points. The threshold is not
// touched until the next signal.
func (c *Controller) SetSettings(s Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	logging.Feedback("settings replaced: %+v", s)
}
