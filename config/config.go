// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

// Package config loads server configuration from an optional YAML file
// with environment-variable overrides. Environment always wins.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/MFTechStaffs/moodle-ai-assistant/moodle"
)

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// MemoryConfig controls the memory store and its optional cache.
type MemoryConfig struct {
	Path string `yaml:"path"`
	// RedisURL enables the conversation-history cache when set.
	RedisURL string `yaml:"redis_url"`
}

// BrowserConfig controls the automation engine.
type BrowserConfig struct {
	UserDataDir string `yaml:"user_data_dir"`
	Headless    bool   `yaml:"headless"`
}

// ProviderConfig holds direct API keys. Providers without a key use
// browser automation.
type ProviderConfig struct {
	AnthropicKey string `yaml:"anthropic_key"`
	OpenAIKey    string `yaml:"openai_key"`
	GeminiKey    string `yaml:"gemini_key"`
}

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Memory    MemoryConfig   `yaml:"memory"`
	Browser   BrowserConfig  `yaml:"browser"`
	Providers ProviderConfig `yaml:"providers"`
	Moodle    moodle.Config  `yaml:"moodle"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           3000,
			AllowedOrigins: []string{"*"},
		},
		Memory: MemoryConfig{
			Path: "./data/memory.db",
		},
		Browser: BrowserConfig{
			UserDataDir: "./browser-sessions",
		},
		Moodle: moodle.Config{
			Host: "localhost",
			Port: 3306,
		},
	}
}

// Load reads configuration: defaults, then the YAML file when path is
// non-empty, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MEMORY_DB_PATH"); v != "" {
		c.Memory.Path = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Memory.RedisURL = v
	}
	if v := os.Getenv("BROWSER_USER_DATA_DIR"); v != "" {
		c.Browser.UserDataDir = v
	}
	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		c.Browser.Headless = v == "true" || v == "1"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Providers.AnthropicKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Providers.OpenAIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Providers.GeminiKey = v
	}
	if v := os.Getenv("MOODLE_DB_HOST"); v != "" {
		c.Moodle.Host = v
	}
	if v := os.Getenv("MOODLE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Moodle.Port = port
		}
	}
	if v := os.Getenv("MOODLE_DB_NAME"); v != "" {
		c.Moodle.Database = v
	}
	if v := os.Getenv("MOODLE_DB_USER"); v != "" {
		c.Moodle.User = v
	}
	if v := os.Getenv("MOODLE_DB_PASSWORD"); v != "" {
		c.Moodle.Password = v
	}
}
