package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "helmhud-guardian" {
		t.Errorf("expected Name=helmhud-guardian, got %s", cfg.Name)
	}
	if got := cfg.GetSweepInterval(); got != 30*time.Second {
		t.Errorf("expected sweep interval 30s, got %s", got)
	}
	if got := cfg.GetPendingDwell(); got != 60*time.Second {
		t.Errorf("expected pending dwell 60s, got %s", got)
	}
	if got := cfg.GetListenerExpiry(); got != 5*time.Minute {
		t.Errorf("expected listener expiry 5m, got %s", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Chains.PendingDwell = "90s"
	cfg.Storage.DatabasePath = "/tmp/guardian-test.db"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.GetPendingDwell() != 90*time.Second {
		t.Errorf("expected pending dwell 90s, got %s", loaded.GetPendingDwell())
	}
	if loaded.Storage.DatabasePath != "/tmp/guardian-test.db" {
		t.Errorf("expected overridden db path, got %s", loaded.Storage.DatabasePath)
	}
}

func TestConfig_MissingFileYieldsDefaults(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != "helmhud-guardian" {
		t.Errorf("expected defaults for missing file, got %s", loaded.Name)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GUARDIAN_DB", "/var/lib/guardian.db")
	t.Setenv("GUARDIAN_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Storage.DatabasePath != "/var/lib/guardian.db" {
		t.Errorf("expected env db path, got %s", cfg.Storage.DatabasePath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected env log level, got %s", cfg.Logging.Level)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for bad logging level")
	}

	cfg = DefaultConfig()
	cfg.Storage.DatabasePath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty database path")
	}
}

func TestDurationFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chains.SweepInterval = "not-a-duration"
	if got := cfg.GetSweepInterval(); got != 30*time.Second {
		t.Errorf("expected fallback 30s, got %s", got)
	}
	cfg.Chains.SweepInterval = "-10s"
	if got := cfg.GetSweepInterval(); got != 30*time.Second {
		t.Errorf("expected fallback for non-positive, got %s", got)
	}
}
