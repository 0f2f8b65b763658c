package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"plantguard/internal/logging"
	"plantguard/internal/types"
)

// Command runs an external model runner once per image.
// The image path is appended to Args. The runner prints either
//
//	{"label": "lantana", "confidence": 0.93}
//
// or a raw output vector decoded against Labels:
//
//	{"scores": [0.93, 0.02, 0.01, 0.04]}
type Command struct {
	Args    []string
	Labels  []string
	Timeout time.Duration
}

// NewCommand creates a Command classifier.
func NewCommand(args []string, labels []string, timeout time.Duration) (*Command, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("classifier: command requires at least one argument")
	}
	if len(labels) == 0 {
		labels = types.Vocabulary
	}
	return &Command{Args: args, Labels: labels, Timeout: timeout}, nil
}

type runnerOutput struct {
	Label      string    `json:"label"`
	Confidence *float64  `json:"confidence"`
	Scores     []float32 `json:"scores"`
	Labels     []string  `json:"labels"`
}

// Classify executes the runner and parses its output.
func (c *Command) Classify(ctx context.Context, img Image) (types.ClassificationResult, error) {
	if img.Path == "" {
		return types.ClassificationResult{}, fmt.Errorf("classifier: command backend needs an image path")
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	timer := logging.StartTimer(logging.CategoryClassifier, "command classify")
	defer timer.StopWithThreshold(5 * time.Second)

	args := append(append([]string{}, c.Args[1:]...), img.Path)
	cmd := exec.CommandContext(ctx, c.Args[0], args...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.ClassifierDebug("running %s %s", c.Args[0], strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return types.ClassificationResult{}, fmt.Errorf("classifier command timed out: %w", ctx.Err())
		}
		logging.ClassifierWarn("runner failed: %v: %s", err, strings.TrimSpace(stderr.String()))
		return types.ClassificationResult{}, fmt.Errorf("classifier command failed: %w", err)
	}

	return parseRunnerOutput(stdout.Bytes(), c.Labels)
}

func parseRunnerOutput(data []byte, labels []string) (types.ClassificationResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return types.ClassificationResult{}, ErrEmptyOutput
	}

	var out runnerOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return types.ClassificationResult{}, fmt.Errorf("failed to parse runner output: %w", err)
	}

	if out.Label != "" && out.Confidence != nil {
		return normalize(types.NewClassificationResult(out.Label, *out.Confidence))
	}
	if len(out.Scores) > 0 {
		if len(out.Labels) > 0 {
			labels = out.Labels
		}
		return Decode(labels, out.Scores)
	}
	return types.ClassificationResult{}, ErrEmptyOutput
}
