package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// TestDefaultConfig_Model verifies model is set
func TestDefaultConfig_Model(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Agent.Model == "" {
		t.Error("Model should not be empty")
	}
	if cfg.Agent.Model != "openai/gpt-5.2" {
		t.Errorf("Model = %q, want %q", cfg.Agent.Model, "openai/gpt-5.2")
	}
}

// TestDefaultConfig_MaxRounds verifies the loop round cap default
func TestDefaultConfig_MaxRounds(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Agent.MaxRounds != 5 {
		t.Errorf("MaxRounds = %d, want 5", cfg.Agent.MaxRounds)
	}
}

// TestDefaultConfig_Safety verifies safety gate defaults
func TestDefaultConfig_Safety(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Safety.VelocityThreshold != 6 {
		t.Errorf("VelocityThreshold = %v, want 6", cfg.Safety.VelocityThreshold)
	}
	if cfg.Safety.LateNightStartHour != 23 || cfg.Safety.LateNightEndHour != 5 {
		t.Errorf("late night band = %d..%d, want 23..5",
			cfg.Safety.LateNightStartHour, cfg.Safety.LateNightEndHour)
	}
	if cfg.Safety.EmergencyContact != "" {
		t.Error("EmergencyContact should be empty by default")
	}
}

// TestDefaultConfig_Context verifies context assembler defaults
func TestDefaultConfig_Context(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Context.TokenBudget == 0 {
		t.Error("TokenBudget should not be zero")
	}
	if cfg.Context.RecentMessageCap == 0 {
		t.Error("RecentMessageCap should not be zero")
	}
	if cfg.Context.MemoryEntryCap == 0 {
		t.Error("MemoryEntryCap should not be zero")
	}
	if cfg.Context.MemoryEntryChars == 0 {
		t.Error("MemoryEntryChars should not be zero")
	}
}

// TestDefaultConfig_Provider verifies provider credentials are empty
func TestDefaultConfig_Provider(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Provider.APIKey != "" {
		t.Error("Provider API key should be empty by default")
	}
	if cfg.Provider.APIBase == "" {
		t.Error("Provider API base should have a default")
	}
}

func TestSaveConfig_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permission bits are not enforced on Windows")
	}

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("config file has permission %04o, want 0600", perm)
	}
}

func TestLoadConfig_EnvOverridesWithoutFile(t *testing.T) {
	t.Setenv("HAVEN_AGENT_MODEL", "env/model")
	path := filepath.Join(t.TempDir(), "missing-config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Agent.Model; got != "env/model" {
		t.Fatalf("expected env override model, got %q", got)
	}
}

func TestLoadConfig_FileThenEnvPrecedence(t *testing.T) {
	t.Setenv("HAVEN_SAFETY_VELOCITY_THRESHOLD", "9")
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"safety":{"velocity_threshold":3,"late_night_start_hour":22}}`), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Safety.VelocityThreshold != 9 {
		t.Fatalf("env should override file, got %v", cfg.Safety.VelocityThreshold)
	}
	if cfg.Safety.LateNightStartHour != 22 {
		t.Fatalf("file value should survive, got %d", cfg.Safety.LateNightStartHour)
	}
}

func TestStoragePath_ExpandsHome(t *testing.T) {
	cfg := DefaultConfig()
	path := cfg.StoragePath()
	if path == "" || path[0] == '~' {
		t.Fatalf("StoragePath should expand ~, got %q", path)
	}
}
