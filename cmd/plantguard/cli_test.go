package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plantguard/internal/config"
)

// resetFlags restores every flag to its default so tests don't leak state
// through the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// newWorkspace creates a workspace whose config uses a static location.
func newWorkspace(t *testing.T) string {
	t.Helper()
	for _, env := range []string{"PLANTGUARD_DB", "PLANTGUARD_GPSD_ADDR", "GEMINI_API_KEY", "PLANTGUARD_LOG_LEVEL"} {
		t.Setenv(env, "")
	}

	ws := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Location.Provider = "static"
	cfg.Location.Static = config.StaticLocation{Latitude: 12.97, Longitude: 77.59, Accuracy: 5}
	cfg.Location.Timeout = "2s"
	require.NoError(t, cfg.Save(config.DefaultPath(ws)))
	return ws
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	logger = zap.NewNop()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInitCmd(t *testing.T) {
	t.Setenv("PLANTGUARD_DB", "")
	ws := t.TempDir()

	out, err := execute(t, "", "init", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default config")
	assert.FileExists(t, config.DefaultPath(ws))
	assert.FileExists(t, filepath.Join(ws, config.DirName, "plant_data.db"))

	// Second run keeps the existing config.
	out, err = execute(t, "", "init", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "Config already exists")
}

func TestAssessCmd_HighRiskIsTagged(t *testing.T) {
	ws := newWorkspace(t)

	out, err := execute(t, "", "assess", "-w", ws, "--plain", "--species", "lantana", "--confidence", "0.9")
	require.NoError(t, err)
	assert.Contains(t, out, "🌿 Species: lantana")
	assert.Contains(t, out, "📊 Confidence: 90.00%")
	assert.Contains(t, out, "⚠ Risk Level: HIGH")
	assert.Contains(t, out, "Remove immediately")
	assert.Contains(t, out, "📍 Fresh GPS Location:\nLatitude: 12.97\nLongitude: 77.59")

	out, err = execute(t, "", "sightings", "-w", ws, "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "lantana")
	assert.Contains(t, out, "12.97, 77.59")
}

func TestAssessCmd_NoTaggingBelowHigh(t *testing.T) {
	ws := newWorkspace(t)

	out, err := execute(t, "", "assess", "-w", ws, "--plain", "--species", "neltuma", "--confidence", "0.3")
	require.NoError(t, err)
	assert.Contains(t, out, "⚠ Risk Level: UNCERTAIN")
	assert.Contains(t, out, "retake clearer image")
	assert.NotContains(t, out, "GPS")

	out, err = execute(t, "", "sightings", "-w", ws, "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "No sightings recorded.")
}

func TestAssessCmd_Errors(t *testing.T) {
	ws := newWorkspace(t)

	_, err := execute(t, "", "assess", "-w", ws)
	assert.Error(t, err)

	// No classifier backend is configured.
	img := filepath.Join(t.TempDir(), "leaf.jpg")
	require.NoError(t, os.WriteFile(img, []byte("\xff\xd8\xff\xe0fake"), 0644))
	_, err = execute(t, "", "assess", "-w", ws, "--image", img)
	assert.Error(t, err)

	_, err = execute(t, "", "assess", "-w", ws, "--species", "lantana")
	assert.Error(t, err, "--species requires --confidence")
}

func TestSessionCmd_FeedbackTightensPolicy(t *testing.T) {
	ws := newWorkspace(t)

	input := strings.Join([]string{
		"assess neltuma 0.7",
		"wrong", "wrong", "wrong", "wrong",
		"status",
		"assess neltuma 0.7",
		"assess lantana 0.9",
		"bogus",
		"quit",
		"assess lantana 0.9",
	}, "\n") + "\n"

	out, err := execute(t, input, "session", "-w", ws, "--plain", "--no-watch")
	require.NoError(t, err)

	assert.Contains(t, out, "⚠ Risk Level: MODERATE")
	assert.Contains(t, out, "Feedback wrong: score -8, threshold 0.75 (changed)")
	assert.Contains(t, out, "threshold 0.75, score -8")
	assert.Contains(t, out, "⚠ Risk Level: UNCERTAIN")
	assert.Contains(t, out, "⚠ Risk Level: HIGH")
	assert.Contains(t, out, "Fresh GPS Location")
	assert.Contains(t, out, `unknown command "bogus"`)
	assert.Equal(t, 1, strings.Count(out, "Risk Level: HIGH"), "input after quit is ignored")
}

func TestSessionCmd_FeedbackIgnoresCase(t *testing.T) {
	ws := newWorkspace(t)

	input := "assess lantana 0.9\nCorrect\nCORRECT\nstatus\nquit\n"
	out, err := execute(t, input, "session", "-w", ws, "--plain", "--no-watch")
	require.NoError(t, err)

	assert.Contains(t, out, "Feedback correct: score 1")
	assert.Contains(t, out, "threshold 0.60, score 2")
	assert.NotContains(t, out, "Feedback wrong")
}

func TestSessionCmd_RejectsNaNConfidence(t *testing.T) {
	ws := newWorkspace(t)

	out, err := execute(t, "assess lantana NaN\nstatus\nquit\n", "session", "-w", ws, "--plain", "--no-watch")
	require.NoError(t, err)
	assert.Contains(t, out, "error: ")
	assert.NotContains(t, out, "Risk Level")
	assert.Contains(t, out, "sightings 0")
}

func TestAssessCmd_RejectsNaNConfidence(t *testing.T) {
	ws := newWorkspace(t)

	_, err := execute(t, "", "assess", "-w", ws, "--plain", "--species", "lantana", "--confidence", "NaN")
	assert.Error(t, err)

	out, err := execute(t, "", "sightings", "-w", ws, "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "No sightings recorded.")
}

func TestConfigShowCmd(t *testing.T) {
	ws := newWorkspace(t)
	t.Setenv("GEMINI_API_KEY", "secret-key")

	out, err := execute(t, "", "config", "show", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "default_threshold: 0.6")
	assert.Contains(t, out, "provider: static")
	assert.NotContains(t, out, "secret-key")
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	s := settingsFromConfig(cfg)
	assert.Equal(t, 1, s.Reward)
	assert.Equal(t, 2, s.Penalty)
	assert.Equal(t, -3, s.LowerBound)
	assert.Equal(t, 3, s.UpperBound)
	assert.Equal(t, 0.75, s.StrictThreshold)
	assert.Equal(t, 0.55, s.LenientThreshold)
}
