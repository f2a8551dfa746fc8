// Package config loads stitch configuration from
// ~/.config/stitch/config.yaml, STITCH_* environment variables, and CLI
// overrides, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/stitchkit/stitch/internal/tools"
)

type Config struct {
	// Provider selects the chunk-event source: anthropic, openai,
	// gemini, or scripted.
	Provider string `mapstructure:"provider"`

	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Tools      tools.Config     `mapstructure:"tools"`
	MCP        MCPConfig        `mapstructure:"mcp"`
	Transcript TranscriptConfig `mapstructure:"transcript"`

	// MaxTurns bounds the agentic loop per run; 0 means the engine
	// default.
	MaxTurns int `mapstructure:"max_turns"`

	// Retry disables the transient-error retry wrapper when false.
	Retry bool `mapstructure:"retry"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"` // Optional, for compatible servers
	Model   string `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// MCPConfig lists external MCP servers whose tools get bridged into the
// registry.
type MCPConfig struct {
	Servers map[string]MCPServerConfig `mapstructure:"servers"`
}

// MCPServerConfig describes one stdio-transport MCP server.
type MCPServerConfig struct {
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Enabled *bool             `mapstructure:"enabled"` // nil means enabled
}

// IsEnabled reports whether the server should be started.
func (s MCPServerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// TranscriptConfig controls turn persistence.
type TranscriptConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // Defaults to <data-dir>/transcripts.db
}

// Load reads the config file (optional), environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()
	configPath, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	v.SetEnvPrefix("STITCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("provider", "anthropic")
	v.SetDefault("retry", true)
	// Empty defaults register the keys so STITCH_* env values reach
	// Unmarshal.
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("openai.model", "gpt-5.2")
	v.SetDefault("gemini.model", "gemini-3-flash-preview")
	v.SetDefault("transcript.enabled", true)
	v.SetDefault("tools.enabled", tools.AllToolNames())
	v.SetDefault("tools.yolo_env", "STITCH_ALLOW_YOLO")

	// Config file is optional; a missing file means defaults.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ApplyOverrides applies CLI provider and model overrides.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model != "" {
		switch c.Provider {
		case "anthropic":
			c.Anthropic.Model = model
		case "openai":
			c.OpenAI.Model = model
		case "gemini":
			c.Gemini.Model = model
		}
	}
}

// Dir returns the stitch config directory, honoring XDG_CONFIG_HOME.
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stitch"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "stitch"), nil
}

// DataDir returns the stitch data directory, honoring XDG_DATA_HOME.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "stitch"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "stitch"), nil
}

// TranscriptPath resolves the transcript database location.
func (c *Config) TranscriptPath() (string, error) {
	if c.Transcript.Path != "" {
		return c.Transcript.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "transcripts.db"), nil
}
