package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DirName is the per-workspace state directory.
const DirName = ".plantguard"

// Config holds all plantguard configuration.
type Config struct {
	// Risk policy
	Policy PolicyConfig `yaml:"policy"`

	// Feedback controller set-points
	Feedback FeedbackConfig `yaml:"feedback"`

	// External collaborators
	Classifier ClassifierConfig `yaml:"classifier"`
	Location   LocationConfig   `yaml:"location"`
	Store      StoreConfig      `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PolicyConfig configures the risk policy.
type PolicyConfig struct {
	DefaultThreshold float64 `yaml:"default_threshold"`
}

// FeedbackConfig configures the feedback controller.
type FeedbackConfig struct {
	Reward           int     `yaml:"reward"`            // score gain on a correct prediction
	Penalty          int     `yaml:"penalty"`           // score loss on a wrong prediction
	LowerBound       int     `yaml:"lower_bound"`       // score below this selects StrictThreshold
	UpperBound       int     `yaml:"upper_bound"`       // score above this selects LenientThreshold
	StrictThreshold  float64 `yaml:"strict_threshold"`
	LenientThreshold float64 `yaml:"lenient_threshold"`
}

// ClassifierConfig configures the image classifier backend.
type ClassifierConfig struct {
	Backend string   `yaml:"backend"`           // none, static, command, gemini
	Command []string `yaml:"command,omitempty"` // argv; the image path is appended
	Labels  []string `yaml:"labels"`            // model output order
	Timeout string   `yaml:"timeout"`
	Model   string   `yaml:"model"`
	APIKey  string   `yaml:"api_key,omitempty"`

	// Fixed result reported by the static backend for every image.
	StaticLabel      string  `yaml:"static_label,omitempty"`
	StaticConfidence float64 `yaml:"static_confidence,omitempty"`
}

// LocationConfig configures HIGH-risk location tagging.
type LocationConfig struct {
	Provider       string         `yaml:"provider"` // none, static, gpsd, fused
	Timeout        string         `yaml:"timeout"`
	AccuracyMeters float64        `yaml:"accuracy_meters"`
	Interval       string         `yaml:"interval"`
	MinInterval    string         `yaml:"min_interval"` // fixes closer together are dropped
	GPSDAddress    string         `yaml:"gpsd_address"`
	Static         StaticLocation `yaml:"static"`
	FusedProviders []string       `yaml:"fused_providers"`
}

// StaticLocation is a fixed position, used when no receiver is attached.
type StaticLocation struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Accuracy  float64 `yaml:"accuracy"`
}

// StoreConfig configures sighting persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Policy: PolicyConfig{
			DefaultThreshold: 0.6,
		},

		Feedback: FeedbackConfig{
			Reward:           1,
			Penalty:          2,
			LowerBound:       -3,
			UpperBound:       3,
			StrictThreshold:  0.75,
			LenientThreshold: 0.55,
		},

		Classifier: ClassifierConfig{
			Backend: "none",
			Labels:  []string{"lantana", "neltuma", "non_invasive", "parthenium"},
			Timeout: "30s",
			Model:   "gemini-2.5-flash",
		},

		Location: LocationConfig{
			Provider:       "gpsd",
			Timeout:        "10s",
			AccuracyMeters: 20,
			Interval:       "1s",
			MinInterval:    "500ms",
			GPSDAddress:    "localhost:2947",
			FusedProviders: []string{"gpsd", "static"},
		},

		Store: StoreConfig{
			DatabasePath: filepath.Join(DirName, "plant_data.db"),
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config file location for a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, DirName, "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults when no config file exists
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("PLANTGUARD_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if addr := os.Getenv("PLANTGUARD_GPSD_ADDR"); addr != "" {
		c.Location.GPSDAddress = addr
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Classifier.APIKey = key
	}
	if lvl := os.Getenv("PLANTGUARD_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

// ResolveDatabasePath returns the database path, relative paths being
// resolved against the workspace.
func (c *Config) ResolveDatabasePath(workspace string) string {
	if filepath.IsAbs(c.Store.DatabasePath) {
		return c.Store.DatabasePath
	}
	return filepath.Join(workspace, c.Store.DatabasePath)
}

// GetClassifierTimeout returns the classifier timeout as a duration.
func (c *Config) GetClassifierTimeout() time.Duration {
	return parseDuration(c.Classifier.Timeout, 30*time.Second)
}

// GetLocationTimeout returns the bounded wait for one location fix.
func (c *Config) GetLocationTimeout() time.Duration {
	return parseDuration(c.Location.Timeout, 10*time.Second)
}

// GetLocationInterval returns the requested update interval.
func (c *Config) GetLocationInterval() time.Duration {
	return parseDuration(c.Location.Interval, time.Second)
}

// GetLocationMinInterval returns the minimum spacing between accepted fixes.
func (c *Config) GetLocationMinInterval() time.Duration {
	return parseDuration(c.Location.MinInterval, 500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidBackends lists all supported classifier backends.
var ValidBackends = []string{"none", "static", "command", "gemini"}

// ValidProviders lists all supported location providers.
var ValidProviders = []string{"none", "static", "gpsd", "fused"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for name, v := range map[string]float64{
		"policy.default_threshold":   c.Policy.DefaultThreshold,
		"feedback.strict_threshold":  c.Feedback.StrictThreshold,
		"feedback.lenient_threshold": c.Feedback.LenientThreshold,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}

	if c.Feedback.Reward <= 0 || c.Feedback.Penalty <= 0 {
		return fmt.Errorf("feedback reward and penalty must be positive (reward=%d, penalty=%d)",
			c.Feedback.Reward, c.Feedback.Penalty)
	}
	if c.Feedback.LowerBound > c.Feedback.UpperBound {
		return fmt.Errorf("feedback lower_bound %d exceeds upper_bound %d",
			c.Feedback.LowerBound, c.Feedback.UpperBound)
	}

	if !contains(ValidBackends, c.Classifier.Backend) {
		return fmt.Errorf("invalid classifier backend: %s (valid: %v)", c.Classifier.Backend, ValidBackends)
	}
	if c.Classifier.Backend == "command" && len(c.Classifier.Command) == 0 {
		return fmt.Errorf("classifier backend 'command' requires classifier.command")
	}
	if c.Classifier.Backend == "static" {
		if c.Classifier.StaticLabel == "" {
			return fmt.Errorf("classifier backend 'static' requires classifier.static_label")
		}
		if v := c.Classifier.StaticConfidence; math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("classifier.static_confidence must be within [0,1], got %v", v)
		}
	}
	if len(c.Classifier.Labels) == 0 {
		return fmt.Errorf("classifier.labels must not be empty")
	}

	if !contains(ValidProviders, c.Location.Provider) {
		return fmt.Errorf("invalid location provider: %s (valid: %v)", c.Location.Provider, ValidProviders)
	}
	for _, p := range c.Location.FusedProviders {
		if p == "fused" || p == "none" || !contains(ValidProviders, p) {
			return fmt.Errorf("invalid fused location provider: %s", p)
		}
	}

	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path must be set")
	}

	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
