package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Provider  ProviderConfig  `json:"provider"`
	Safety    SafetyConfig    `json:"safety"`
	Context   ContextConfig   `json:"context"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
	Logging   LoggingConfig   `json:"logging"`
	mu        sync.RWMutex
}

type AgentConfig struct {
	Model        string  `json:"model" env:"HAVEN_AGENT_MODEL"`
	MaxTokens    int     `json:"max_tokens" env:"HAVEN_AGENT_MAX_TOKENS"`
	Temperature  float64 `json:"temperature" env:"HAVEN_AGENT_TEMPERATURE"`
	MaxRounds    int     `json:"max_rounds" env:"HAVEN_AGENT_MAX_ROUNDS"`
	RetryMax     int     `json:"retry_max" env:"HAVEN_AGENT_RETRY_MAX"`
	RetryBaseMS  int     `json:"retry_base_ms" env:"HAVEN_AGENT_RETRY_BASE_MS"`
	DataDir      string  `json:"data_dir" env:"HAVEN_AGENT_DATA_DIR"`
	SystemPrompt string  `json:"system_prompt,omitempty" env:"HAVEN_AGENT_SYSTEM_PROMPT"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"HAVEN_PROVIDER_API_KEY"`
	APIBase string `json:"api_base" env:"HAVEN_PROVIDER_API_BASE"`
	Proxy   string `json:"proxy,omitempty" env:"HAVEN_PROVIDER_PROXY"`
}

type SafetyConfig struct {
	// VelocityThreshold is the count of user messages in the recent
	// window above which the gate escalates low severities.
	VelocityThreshold float64 `json:"velocity_threshold" env:"HAVEN_SAFETY_VELOCITY_THRESHOLD"`
	// LateNightStartHour..LateNightEndHour is the local-time band that
	// escalates monitor/concern by one tier. Wraps midnight.
	LateNightStartHour int `json:"late_night_start_hour" env:"HAVEN_SAFETY_LATE_NIGHT_START_HOUR"`
	LateNightEndHour   int `json:"late_night_end_hour" env:"HAVEN_SAFETY_LATE_NIGHT_END_HOUR"`
	// EmergencyContact is an optional phone number or name surfaced
	// alongside the crisis resource bundle.
	EmergencyContact string `json:"emergency_contact,omitempty" env:"HAVEN_SAFETY_EMERGENCY_CONTACT"`
}

type ContextConfig struct {
	TokenBudget      int `json:"token_budget" env:"HAVEN_CONTEXT_TOKEN_BUDGET"`
	RecentMessageCap int `json:"recent_message_cap" env:"HAVEN_CONTEXT_RECENT_MESSAGE_CAP"`
	MemoryEntryCap   int `json:"memory_entry_cap" env:"HAVEN_CONTEXT_MEMORY_ENTRY_CAP"`
	MemoryEntryChars int `json:"memory_entry_chars" env:"HAVEN_CONTEXT_MEMORY_ENTRY_CHARS"`
	MetricsWindow    int `json:"metrics_window_days" env:"HAVEN_CONTEXT_METRICS_WINDOW_DAYS"`
}

type StorageConfig struct {
	Path string `json:"path" env:"HAVEN_STORAGE_PATH"`
}

type RemindersConfig struct {
	Enabled      bool   `json:"enabled" env:"HAVEN_REMINDERS_ENABLED"`
	CheckInCron  string `json:"check_in_cron" env:"HAVEN_REMINDERS_CHECK_IN_CRON"`
	CheckInLabel string `json:"check_in_label" env:"HAVEN_REMINDERS_CHECK_IN_LABEL"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"HAVEN_LOG_LEVEL"`
	Format string `json:"format" env:"HAVEN_LOG_FORMAT"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:       "openai/gpt-5.2",
			MaxTokens:   4096,
			Temperature: 0.6,
			MaxRounds:   5,
			RetryMax:    3,
			RetryBaseMS: 500,
			DataDir:     "~/.haven",
		},
		Provider: ProviderConfig{
			APIBase: "https://openrouter.ai/api/v1",
		},
		Safety: SafetyConfig{
			VelocityThreshold:  6,
			LateNightStartHour: 23,
			LateNightEndHour:   5,
		},
		Context: ContextConfig{
			TokenBudget:      4096,
			RecentMessageCap: 20,
			MemoryEntryCap:   5,
			MemoryEntryChars: 280,
			MetricsWindow:    14,
		},
		Storage: StorageConfig{
			Path: "~/.haven/haven.db",
		},
		Reminders: RemindersConfig{
			Enabled:      true,
			CheckInCron:  "0 9 * * *",
			CheckInLabel: "morning check-in",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file is fine; env overrides still apply.
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// DataDir returns the agent data directory with ~ expanded.
func (c *Config) DataDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Agent.DataDir)
}

// StoragePath returns the SQLite database path with ~ expanded.
func (c *Config) StoragePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.Path)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
