package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"plantguard/internal/classifier"
	"plantguard/internal/config"
	"plantguard/internal/feedback"
	"plantguard/internal/location"
	"plantguard/internal/logging"
	"plantguard/internal/pipeline"
	"plantguard/internal/risk"
	"plantguard/internal/store"
)

// commandContext returns cmd's context, or Background when run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

func resolveConfigPath(ws string) string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath(ws)
}

// loadConfig loads and validates the workspace config and initializes
// the categorized file loggers from it.
func loadConfig(ws string) (*config.Config, error) {
	path := resolveConfigPath(ws)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	opts := cfg.Logging.Options()
	if verbose {
		opts.DebugMode = true
		opts.Level = "debug"
	}
	if err := logging.Initialize(ws, opts); err != nil {
		logger.Warn("file logging disabled", zap.Error(err))
	}
	return cfg, nil
}

func settingsFromConfig(cfg *config.Config) feedback.Settings {
	f := cfg.Feedback
	return feedback.Settings{
		Reward:           f.Reward,
		Penalty:          f.Penalty,
		LowerBound:       f.LowerBound,
		UpperBound:       f.UpperBound,
		StrictThreshold:  f.StrictThreshold,
		LenientThreshold: f.LenientThreshold,
	}
}

// app is one command's wired runtime.
type app struct {
	ws    string
	cfg   *config.Config
	store *store.SightingStore
	orch  *pipeline.Orchestrator
}

// newApp wires classifier, location provider and store into an orchestrator.
// A missing classifier backend or disabled location provider is not an error:
// manual entry still works and HIGH-risk runs report that tagging is off.
func newApp(ctx context.Context, ws string, cfg *config.Config) (*app, error) {
	c, err := classifier.New(ctx, cfg)
	if err != nil {
		if !errors.Is(err, classifier.ErrNoBackend) {
			return nil, err
		}
		c = nil
		logger.Debug("no classifier backend configured")
	}

	provider, err := location.New(cfg)
	if err != nil {
		if !errors.Is(err, location.ErrDisabled) {
			return nil, err
		}
		provider = nil
		logger.Debug("location tagging disabled")
	}

	st, err := store.Open(cfg.ResolveDatabasePath(ws))
	if err != nil {
		return nil, err
	}

	settings := settingsFromConfig(cfg)
	orch := pipeline.New(pipeline.Options{
		Classifier:      c,
		State:           risk.NewState(cfg.Policy.DefaultThreshold),
		Feedback:        &settings,
		Location:        provider,
		LocationRequest: location.NewRequest(cfg),
		Recorder:        st,
		FeedbackLog:     st,
	})

	logger.Info("pipeline ready",
		zap.String("workspace", ws),
		zap.String("classifier", cfg.Classifier.Backend),
		zap.String("location", cfg.Location.Provider),
		zap.Float64("threshold", cfg.Policy.DefaultThreshold))

	return &app{ws: ws, cfg: cfg, store: st, orch: orch}, nil
}

// Close waits for in-flight tagging and closes the store.
func (a *app) Close() error {
	a.orch.Wait()
	logging.CloseAll()
	return a.store.Close()
}
