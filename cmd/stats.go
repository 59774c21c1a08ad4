package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/scipunch/tgrelay/store"
)

var statsWindow time.Duration

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print relay statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		conf, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(ctx, conf)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(ctx, time.Now().Add(-statsWindow))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), store.FormatStats(stats, statsWindow))
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clear the relay log and leftover downloads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		conf, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(ctx, conf)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Clear(ctx); err != nil {
			return err
		}
		slog.Info("relay log cleared")

		// Scratch files are removed after upload; these are from interrupted runs
		if conf.DownloadDir != "" {
			if err := os.RemoveAll(conf.DownloadDir); err != nil {
				return fmt.Errorf("failed to remove download directory with %w", err)
			}
			slog.Info("download directory removed", "path", conf.DownloadDir)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().DurationVar(&statsWindow, "window", 24*time.Hour, "time window to report")
	rootCmd.AddCommand(statsCmd, cleanCmd)
}
