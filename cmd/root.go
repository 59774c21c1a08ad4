// Package cmd implements the tgrelay command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scipunch/tgrelay/config"
	"github.com/scipunch/tgrelay/store"
)

// Version is set at build time
var Version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:     "tgrelay",
	Short:   "Telegram bot relaying restricted channel posts by link",
	Version: Version,
	Args:    cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
		config.LoadEnv()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context())
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a TOML config (default "+config.DefaultPath()+")")
}

// Execute runs the command line until ctx is cancelled
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setupLogging() {
	if os.Getenv("DEBUG") != "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
}

func configPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.DefaultPath()
}

// credentialsPath keeps creds.toml beside the config file
func credentialsPath() string {
	return filepath.Join(filepath.Dir(configPath()), "creds.toml")
}

// loadConfig reads the config, writing the defaults on first run
func loadConfig() (config.Config, error) {
	path := configPath()
	conf, err := config.Read(path)
	if errors.Is(err, os.ErrNotExist) && path == config.DefaultPath() {
		if err := config.Write(path, conf); err != nil {
			return conf, fmt.Errorf("failed to write default config with %w", err)
		}
	} else if err != nil {
		return conf, fmt.Errorf("failed to read config with %w", err)
	}

	if err := conf.Validate(); err != nil {
		return conf, fmt.Errorf("invalid config at %s with %w", path, err)
	}
	return conf, nil
}

func openStore(ctx context.Context, conf config.Config) (*store.Store, error) {
	st, err := store.Open(ctx, conf.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database with %w", err)
	}
	return st, nil
}
