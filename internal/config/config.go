// Package config loads coverspark configuration from defaults, an
// optional YAML file, and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
	// MaxBytes bounds the total serialized history size. Writes past
	// the bound fail softly; in-memory state stays authoritative.
	MaxBytes int64 `yaml:"max_bytes"`
}

type StrategyConfig struct {
	Model string `yaml:"model"`
	// Count is the fixed number of strategies per session.
	Count      int `yaml:"count"`
	TimeoutSec int `yaml:"timeout_sec"`
}

type ImageConfig struct {
	PrimaryModel  string `yaml:"primary_model"`
	FallbackModel string `yaml:"fallback_model"`
	AspectRatio   string `yaml:"aspect_ratio"`
	// ImageSize is the resolution tier sent only to the primary model.
	ImageSize   string  `yaml:"image_size"`
	MaxAttempts int     `yaml:"max_attempts"`
	RatePerSec  float64 `yaml:"rate_per_sec"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
}

type Config struct {
	LogMode  string         `yaml:"log_mode"`
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Strategy StrategyConfig `yaml:"strategy"`
	Image    ImageConfig    `yaml:"image"`
	Backend  BackendConfig  `yaml:"backend"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogMode: "dev",
		Server: ServerConfig{
			Addr:           ":8386",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Store: StoreConfig{
			Path:     defaultStorePath(),
			MaxBytes: 64 << 20,
		},
		Strategy: StrategyConfig{
			Model:      "gemini-3-pro-preview",
			Count:      2,
			TimeoutSec: 120,
		},
		Image: ImageConfig{
			PrimaryModel:  "gemini-3-pro-image-preview",
			FallbackModel: "gemini-2.5-flash-image",
			AspectRatio:   "3:4",
			ImageSize:     "1K",
			MaxAttempts:   2,
			RatePerSec:    1,
			TimeoutSec:    180,
		},
		Backend: BackendConfig{},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "coverspark.db"
	}
	return filepath.Join(home, ".coverspark", "history.db")
}

// Load merges an optional YAML file and environment overrides onto the
// defaults. An empty path skips the file step.
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

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("COVERSPARK_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("COVERSPARK_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("COVERSPARK_LOG_MODE"); v != "" {
		c.LogMode = v
	}
	if v := os.Getenv("COVERSPARK_STORE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Store.MaxBytes = n
		}
	}
	if v := os.Getenv("GEMINI_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
}

func (c *Config) validate() error {
	if c.Strategy.Count < 1 {
		return fmt.Errorf("strategy count must be at least 1, got %d", c.Strategy.Count)
	}
	if c.Store.MaxBytes < 1 {
		return fmt.Errorf("store max_bytes must be positive, got %d", c.Store.MaxBytes)
	}
	if c.Image.MaxAttempts < 1 {
		return fmt.Errorf("image max_attempts must be at least 1, got %d", c.Image.MaxAttempts)
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("server allowed_origins must not be empty")
	}
	return nil
}
