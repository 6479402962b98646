// Package config manages application configuration.
//
// Configuration is resolved once at process start into a plain value object
// and handed to each component's constructor; nothing in the core reads the
// environment on its own. Priority: environment variables > config file >
// defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"playsync/retry"
)

// envPrefix is the prefix of the environment variables envconfig reads,
// e.g. PLAYSYNC_STORE_PATH, PLAYSYNC_BATCH_SIZE, PLAYSYNC_YOUTUBE_API_KEY.
const envPrefix = "playsync"

// Config holds all application configuration.
type Config struct {
	// StorePath is the location of the JSON store file.
	StorePath string `json:"store_path" envconfig:"STORE_PATH"`

	// BatchSize is the default number of feed items examined per source
	// and the capacity of each source's dedup window.
	BatchSize int `json:"batch_size" envconfig:"BATCH_SIZE"`
	// TakeNewOnly makes sync stop at the first already-seen feed item by
	// default instead of requiring an explicit time window.
	TakeNewOnly bool `json:"take_new_only" envconfig:"TAKE_NEW_ONLY"`

	// YouTubeAPIKey enables the Data API provider for playlist sources.
	YouTubeAPIKey string `json:"youtube_api_key" envconfig:"YOUTUBE_API_KEY"`

	// HTTPTimeout bounds a single feed request.
	HTTPTimeout time.Duration `json:"http_timeout" envconfig:"HTTP_TIMEOUT"`

	// Retry settings for feed providers.
	MaxRetries     int           `json:"max_retries" envconfig:"MAX_RETRIES"`
	InitialBackoff time.Duration `json:"initial_backoff" envconfig:"INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `json:"max_backoff" envconfig:"MAX_BACKOFF"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		StorePath:      filepath.Join(home, ".local", "share", "playsync", "playsync.json"),
		BatchSize:      10,
		TakeNewOnly:    true,
		HTTPTimeout:    30 * time.Second,
		MaxRetries:     5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// RetryConfig materializes the retry settings as a retry.Config, keeping
// the package defaults for the knobs Config does not expose.
func (c *Config) RetryConfig() retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxRetries = c.MaxRetries
	rc.InitialBackoff = c.InitialBackoff
	rc.MaxBackoff = c.MaxBackoff
	return rc
}

// Load loads configuration from environment variables, config file, and
// applies defaults. Priority: env vars > config file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Try to load from config file
	if err := cfg.loadFromFile(); err != nil {
		// Config file is optional
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load config from playsync.json in the current
// directory or the user config directory.
func (c *Config) loadFromFile() error {
	paths := []string{
		"playsync.json",
		filepath.Join(os.Getenv("HOME"), ".config", "playsync", "playsync.json"),
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("store_path must not be empty")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	return nil
}
