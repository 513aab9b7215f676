// Package config loads guardian configuration from YAML with environment
// overrides. Missing files fall back to defaults so a fresh checkout runs
// without any setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all guardian configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Chain detection and pending-queue timing
	Chains ChainsConfig `yaml:"chains"`

	// Storage
	Storage StorageConfig `yaml:"storage"`

	// Training quests
	Training TrainingConfig `yaml:"training"`

	// Moderation windows
	Moderation ModerationConfig `yaml:"moderation"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ChainsConfig configures chain detection and the pending review queue.
type ChainsConfig struct {
	// SweepInterval is how often the pending queue is swept.
	SweepInterval string `yaml:"sweep_interval"`

	// PendingDwell is how long a chain must sit unreviewed before
	// auto-registration.
	PendingDwell string `yaml:"pending_dwell"`

	// SaveInterval is how often state is flushed to storage.
	SaveInterval string `yaml:"save_interval"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// TrainingConfig configures the quest catalog.
type TrainingConfig struct {
	// QuestFile optionally points at a YAML file of custom quests,
	// watched for changes while the engine runs.
	QuestFile string `yaml:"quest_file"`
}

// ModerationConfig configures moderation timing.
type ModerationConfig struct {
	// ListenerExpiry is how long shield-marking mode stays armed.
	ListenerExpiry string `yaml:"listener_expiry"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "helmhud-guardian",
		Version: "1.0.0",

		Chains: ChainsConfig{
			SweepInterval: "30s",
			PendingDwell:  "60s",
			SaveInterval:  "5m",
		},

		Storage: StorageConfig{
			DatabasePath: "data/guardian.db",
		},

		Training: TrainingConfig{
			QuestFile: "",
		},

		Moderation: ModerationConfig{
			ListenerExpiry: "5m",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
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

// Save writes the configuration to a YAML file, creating directories as
// needed.
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
	if path := os.Getenv("GUARDIAN_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if level := os.Getenv("GUARDIAN_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if file := os.Getenv("GUARDIAN_QUEST_FILE"); file != "" {
		c.Training.QuestFile = file
	}
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetSweepInterval returns the pending-queue sweep interval as a duration.
func (c *Config) GetSweepInterval() time.Duration {
	return duration(c.Chains.SweepInterval, 30*time.Second)
}

// GetPendingDwell returns the pending dwell as a duration.
func (c *Config) GetPendingDwell() time.Duration {
	return duration(c.Chains.PendingDwell, 60*time.Second)
}

// GetSaveInterval returns the persistence flush interval as a duration.
func (c *Config) GetSaveInterval() time.Duration {
	return duration(c.Chains.SaveInterval, 5*time.Minute)
}

// GetListenerExpiry returns the shield-listener expiry window as a duration.
func (c *Config) GetListenerExpiry() time.Duration {
	return duration(c.Moderation.ListenerExpiry, 5*time.Minute)
}

// ValidLevels lists the accepted logging levels.
var ValidLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database_path not configured")
	}

	validLevel := false
	for _, l := range ValidLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLevels)
	}

	return nil
}
