package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReadWrite(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "tgrelay", "config.toml")

	cfg := Default()
	cfg.MaxRange = 10
	cfg.HealthAddr = ":8080"
	if err := Write(cfgPath, cfg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := Read(cfgPath)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.MaxRange != 10 || got.HealthAddr != ":8080" {
		t.Errorf("Unexpected config: %+v", got)
	}
	if got.SessionPath != cfg.SessionPath {
		t.Errorf("Expected session path %s, got %s", cfg.SessionPath, got.SessionPath)
	}
}

func TestRead_PartialKeepsDefaults(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(cfgPath, []byte("max_range = 5\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Read(cfgPath)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.MaxRange != 5 {
		t.Errorf("Expected max_range 5, got %d", got.MaxRange)
	}
	if got.FloodWaitLimitSeconds != Default().FloodWaitLimitSeconds {
		t.Errorf("Expected default flood wait limit, got %d", got.FloodWaitLimitSeconds)
	}
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "default", modify: func(*Config) {}},
		{name: "no session", modify: func(c *Config) { c.SessionPath = "" }, wantErr: "session_path"},
		{name: "no database", modify: func(c *Config) { c.DatabasePath = "" }, wantErr: "database_path"},
		{name: "zero range", modify: func(c *Config) { c.MaxRange = 0 }, wantErr: "max_range"},
		{name: "negative rate", modify: func(c *Config) { c.RequestsPerSecond = -1 }, wantErr: "requests_per_second"},
		{name: "negative flood wait", modify: func(c *Config) { c.FloodWaitLimitSeconds = -1 }, wantErr: "flood_wait_limit_seconds"},
		{name: "zero flood wait", modify: func(c *Config) { c.FloodWaitLimitSeconds = 0 }, wantErr: "flood_wait_limit_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error about %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFloodWaitLimit(t *testing.T) {
	cfg := Config{FloodWaitLimitSeconds: 45}
	if cfg.FloodWaitLimit() != 45*time.Second {
		t.Errorf("Expected 45s, got %v", cfg.FloodWaitLimit())
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := DefaultPath(); got != "/tmp/xdg/tgrelay/config.toml" {
		t.Errorf("Unexpected default path %s", got)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/someone")
	if got := DefaultPath(); got != "/home/someone/.config/tgrelay/config.toml" {
		t.Errorf("Unexpected default path %s", got)
	}
}

func TestDefault_DataPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/data")
	cfg := Default()
	if cfg.DatabasePath != "/tmp/data/tgrelay/data.db" {
		t.Errorf("Unexpected database path %s", cfg.DatabasePath)
	}
	if cfg.SessionPath != "/tmp/data/tgrelay/session.json" {
		t.Errorf("Unexpected session path %s", cfg.SessionPath)
	}
}
