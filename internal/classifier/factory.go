package classifier

import (
	"context"
	"fmt"

	"plantguard/internal/config"
	"plantguard/internal/logging"
)

// New builds the classifier selected by cfg.Classifier.Backend.
func New(ctx context.Context, cfg *config.Config) (Classifier, error) {
	c := cfg.Classifier
	logging.Classifier("Creating classifier backend %q", c.Backend)

	switch c.Backend {
	case "", "none":
		return nil, ErrNoBackend
	case "static":
		return NewStatic(c.StaticLabel, c.StaticConfidence), nil
	case "command":
		cmd, err := NewCommand(c.Command, c.Labels, cfg.GetClassifierTimeout())
		if err != nil {
			return nil, err
		}
		return cmd, nil
	case "gemini":
		g, err := NewGemini(ctx, c.APIKey, c.Model, c.Labels)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown classifier backend: %s", c.Backend)
	}
}
