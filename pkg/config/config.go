// Package config loads the process configuration from an optional YAML
// file, with environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
)

// Config is the process-level configuration.
type Config struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen"`

	Database DatabaseConfig `yaml:"database"`
	Run      RunDefaults    `yaml:"run"`

	// AnthropicAPIKeyEnv names the environment variable the agent loop
	// reads its API key from.
	AnthropicAPIKeyEnv string `yaml:"anthropic_api_key_env"`
}

// DatabaseConfig selects the chat history backend.
type DatabaseConfig struct {
	// Path of the SQLite database file. Ignored when InMemory is set.
	Path string `yaml:"path"`
	// InMemory keeps history in process memory; it does not survive a
	// restart.
	InMemory bool `yaml:"in_memory"`
}

// RunDefaults are applied to run requests that leave the field empty.
type RunDefaults struct {
	Model     string `yaml:"model"`
	Provider  string `yaml:"provider"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Database: DatabaseConfig{
			Path: "data/sessions.db",
		},
		Run: RunDefaults{
			Model:     "claude-sonnet-4-5",
			Provider:  "anthropic",
			MaxTokens: 4096,
		},
		AnthropicAPIKeyEnv: "ANTHROPIC_API_KEY",
	}
}

// Load reads the configuration file at path when it exists, then applies
// environment overrides. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to defaults and env.
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AGENTD_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("AGENTD_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AGENTD_DB_IN_MEMORY"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Database.InMemory = parsed
		}
	}
	if v := os.Getenv("AGENTD_MODEL"); v != "" {
		cfg.Run.Model = v
	}
	if v := os.Getenv("AGENTD_PROVIDER"); v != "" {
		cfg.Run.Provider = v
	}
	if v := os.Getenv("AGENTD_ANTHROPIC_API_KEY_ENV"); v != "" {
		cfg.AnthropicAPIKeyEnv = v
	}
}
