package config

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/scipunch/tgrelay/store"
)

const baseCfgPath = "tgrelay/config.toml"

type Config struct {
	SessionPath  string `toml:"session_path"`
	DatabasePath string `toml:"database_path"`
	DownloadDir  string `toml:"download_dir"`  // Scratch directory for re-uploaded media
	MaxFileSize  int64  `toml:"max_file_size"` // Bytes, 0 = no limit
	MaxRange     int    `toml:"max_range"`     // Messages relayed per range link

	RequestsPerSecond     float64 `toml:"requests_per_second"`      // 0 = unlimited
	FloodWaitLimitSeconds int     `toml:"flood_wait_limit_seconds"` // At least 1; longer waits are reported to the user

	HealthAddr string `toml:"health_addr"` // Empty disables the health server
}

// FloodWaitLimit returns the flood wait limit as a duration
func (c Config) FloodWaitLimit() time.Duration {
	return time.Duration(c.FloodWaitLimitSeconds) * time.Second
}

// Validate rejects values the bot cannot run with
func (c Config) Validate() error {
	if c.SessionPath == "" {
		return fmt.Errorf("session_path is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must not be negative, got %d", c.MaxFileSize)
	}
	if c.MaxRange < 1 {
		return fmt.Errorf("max_range must be at least 1, got %d", c.MaxRange)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative, got %v", c.RequestsPerSecond)
	}
	if c.FloodWaitLimitSeconds < 1 {
		return fmt.Errorf("flood_wait_limit_seconds must be at least 1, got %d", c.FloodWaitLimitSeconds)
	}
	return nil
}

func Read(path string) (Config, error) {
	conf := Default()
	dat, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	_, err = toml.Decode(string(dat), &conf)
	if err != nil {
		return conf, fmt.Errorf("failed to decode config at %s with %w", path, err)
	}
	return conf, nil
}

func Write(cfgPath string, cfg Config) error {
	blob, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config with %w", err)
	}
	basePath := path.Dir(cfgPath)
	err = os.MkdirAll(basePath, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create base config directory at '%s' with %w", basePath, err)
	}
	err = os.WriteFile(cfgPath, blob, 0644)
	if err != nil {
		return fmt.Errorf("failed to write into config file at '%s' with %w", cfgPath, err)
	}
	slog.Info("config written", "at", cfgPath)
	return nil
}

func Default() Config {
	var dataDir = os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		dataDir = path.Join(os.Getenv("HOME"), ".local/share")
	}
	var base = path.Join(dataDir, "tgrelay")
	return Config{
		SessionPath:           path.Join(base, "session.json"),
		DatabasePath:          store.DefaultPath(),
		DownloadDir:           path.Join(os.TempDir(), "tgrelay"),
		MaxFileSize:           2000 * 1024 * 1024,
		MaxRange:              50,
		RequestsPerSecond:     10,
		FloodWaitLimitSeconds: 30,
		HealthAddr:            "",
	}
}

func DefaultPath() string {
	var xdgHome = os.Getenv("XDG_CONFIG_HOME")
	if xdgHome != "" {
		return path.Join(xdgHome, baseCfgPath)
	}

	var home = os.Getenv("HOME")
	if home != "" {
		return path.Join(home, ".config", baseCfgPath)
	}

	panic("unclear where to search for the config fie")
}
