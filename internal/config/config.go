package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config root configuration
type Config struct {
	Workspace string          `mapstructure:"workspace"`
	Safety    SafetyConfig    `mapstructure:"safety"`
	Matcher   MatcherConfig   `mapstructure:"matcher"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Approvals ApprovalsConfig `mapstructure:"approvals"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Log       LogConfig       `mapstructure:"log"`
}

// SafetyConfig locates the principle and level documents. Empty file paths
// select the built-in defaults.
type SafetyConfig struct {
	PrinciplesFile string `mapstructure:"principles_file"`
	LevelsFile     string `mapstructure:"levels_file"`
	DefaultLevel   string `mapstructure:"default_level"`
}

// MatcherConfig selects the principle matching strategy.
type MatcherConfig struct {
	Engine      string  `mapstructure:"engine"` // keyword | llm
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// ProviderConfig is one LLM provider endpoint.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ProvidersConfig LLM provider settings for the llm matcher engine.
type ProvidersConfig struct {
	OpenAI ProviderConfig `mapstructure:"openai"`
	Claude ProviderConfig `mapstructure:"claude"`
	Ollama ProviderConfig `mapstructure:"ollama"`
}

// ApprovalsConfig tunes the approval registry timing.
type ApprovalsConfig struct {
	TTLMinutes     int `mapstructure:"ttl_minutes"`
	SweepMinutes   int `mapstructure:"sweep_minutes"`
	RetentionHours int `mapstructure:"retention_hours"`
}

// GatewayConfig HTTP gateway settings
type GatewayConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Token   string `mapstructure:"token"`
}

// LogConfig slog settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, using current directory as fallback", "error", err)
		homeDir = "."
	}
	return &Config{
		Workspace: filepath.Join(homeDir, ".aegis", "workspace"),
		Safety: SafetyConfig{
			PrinciplesFile: "",
			LevelsFile:     "",
			DefaultLevel:   "standard",
		},
		Matcher: MatcherConfig{
			Engine:      "keyword",
			Model:       "claude-sonnet-4-5",
			MaxTokens:   1024,
			Temperature: 0,
		},
		Providers: ProvidersConfig{},
		Approvals: ApprovalsConfig{
			TTLMinutes:     15,
			SweepMinutes:   5,
			RetentionHours: 24,
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    18890,
			Token:   "",
		},
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ConfigDir returns the aegis config directory
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".aegis"
	}
	return filepath.Join(homeDir, ".aegis")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load reads the config file, creating a default one when missing.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := ConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := Save(cfg); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("AEGIS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	out := strings.ToLower(input)
	out = strings.ReplaceAll(out, "_", "")
	out = strings.ReplaceAll(out, "-", "")
	return out
}

// Save writes the config as indented JSON.
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Safety.DefaultLevel) == "" {
		c.Safety.DefaultLevel = "standard"
	}

	engine := strings.ToLower(strings.TrimSpace(c.Matcher.Engine))
	if engine == "" {
		engine = "keyword"
	}
	if engine != "keyword" && engine != "llm" {
		return fmt.Errorf("matcher.engine must be keyword or llm, got %q", c.Matcher.Engine)
	}
	c.Matcher.Engine = engine

	if c.Matcher.MaxTokens < 0 {
		return fmt.Errorf("matcher.max_tokens must not be negative, got %d", c.Matcher.MaxTokens)
	}
	if c.Matcher.MaxTokens == 0 {
		c.Matcher.MaxTokens = 1024
	}

	if c.Approvals.TTLMinutes < 0 {
		return fmt.Errorf("approvals.ttl_minutes must not be negative, got %d", c.Approvals.TTLMinutes)
	}
	if c.Approvals.TTLMinutes == 0 {
		c.Approvals.TTLMinutes = 15
	}
	if c.Approvals.SweepMinutes < 0 {
		return fmt.Errorf("approvals.sweep_minutes must not be negative, got %d", c.Approvals.SweepMinutes)
	}
	if c.Approvals.SweepMinutes == 0 {
		c.Approvals.SweepMinutes = 5
	}
	if c.Approvals.RetentionHours < 0 {
		return fmt.Errorf("approvals.retention_hours must not be negative, got %d", c.Approvals.RetentionHours)
	}
	if c.Approvals.RetentionHours == 0 {
		c.Approvals.RetentionHours = 24
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	return nil
}

// WorkspacePath returns the workspace directory, falling back to the
// config-dir default when unset.
func (c *Config) WorkspacePath() string {
	ws := strings.TrimSpace(c.Workspace)
	if ws == "" {
		return filepath.Join(ConfigDir(), "workspace")
	}
	return ws
}
