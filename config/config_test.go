package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdir moves the test into an empty directory so a playsync.json in the
// working tree cannot leak into the result.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.BatchSize)
	}
	if !cfg.TakeNewOnly {
		t.Error("TakeNewOnly should default to true")
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v, want 30s", cfg.HTTPTimeout)
	}
	if cfg.StorePath == "" {
		t.Error("StorePath should have a default")
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", t.TempDir())

	content := `{"batch_size": 25, "youtube_api_key": "test-key"}`
	if err := os.WriteFile(filepath.Join(dir, "playsync.json"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.BatchSize)
	}
	if cfg.YouTubeAPIKey != "test-key" {
		t.Errorf("YouTubeAPIKey = %q, want %q", cfg.YouTubeAPIKey, "test-key")
	}
	// Untouched fields keep their defaults
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", t.TempDir())

	content := `{"batch_size": 25}`
	if err := os.WriteFile(filepath.Join(dir, "playsync.json"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("PLAYSYNC_BATCH_SIZE", "50")
	t.Setenv("PLAYSYNC_TAKE_NEW_ONLY", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50 (env beats file)", cfg.BatchSize)
	}
	if cfg.TakeNewOnly {
		t.Error("TakeNewOnly should be overridden to false")
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", t.TempDir())

	if err := os.WriteFile(filepath.Join(dir, "playsync.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(); err == nil {
		t.Error("Load() with malformed file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"empty store path", func(c *Config) { c.StorePath = "" }, false},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, false},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, false},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }, false},
		{"backoff inverted", func(c *Config) { c.MaxBackoff = c.InitialBackoff / 2 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, ok = %v", err, tt.ok)
			}
		})
	}
}

func TestRetryConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	cfg.InitialBackoff = 2 * time.Second
	cfg.MaxBackoff = 10 * time.Second

	rc := cfg.RetryConfig()
	if rc.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", rc.MaxRetries)
	}
	if rc.InitialBackoff != 2*time.Second {
		t.Errorf("InitialBackoff = %v, want 2s", rc.InitialBackoff)
	}
	if rc.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", rc.MaxBackoff)
	}
	if rc.Multiplier <= 1 {
		t.Errorf("Multiplier = %v, want the package default", rc.Multiplier)
	}
}
