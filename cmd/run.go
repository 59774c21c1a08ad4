package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/scipunch/tgrelay/config"
	"github.com/scipunch/tgrelay/health"
	"github.com/scipunch/tgrelay/relay"
	"github.com/scipunch/tgrelay/report"
	"github.com/scipunch/tgrelay/telegram"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot (default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(ctx context.Context) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	creds, err := config.LoadCredentials(credentialsPath())
	if err != nil {
		return fmt.Errorf("failed to load credentials with %w", err)
	}
	if err := creds.Telegram.Validate(); err != nil {
		return err
	}

	if err := report.Init(creds.Sentry.DSN, creds.Sentry.Environment, "tgrelay@"+Version); err != nil {
		slog.Warn("error reporting disabled", "error", err)
	}
	defer report.Flush()

	st, err := openStore(ctx, conf)
	if err != nil {
		return err
	}
	defer st.Close()

	session, err := telegram.NewSession(telegram.Options{
		AppID:             creds.Telegram.AppID,
		AppHash:           creds.Telegram.AppHash,
		BotToken:          creds.Telegram.BotToken,
		PhoneNumber:       creds.Telegram.PhoneNumber,
		SessionPath:       conf.SessionPath,
		DownloadDir:       conf.DownloadDir,
		MaxFileSize:       conf.MaxFileSize,
		RequestsPerSecond: conf.RequestsPerSecond,
		FloodWaitLimit:    conf.FloodWaitLimit(),
		Debug:             isDebug(),
	}, st)
	if err != nil {
		return fmt.Errorf("failed to create telegram session with %w", err)
	}

	client := session.Client()
	dispatcher := relay.NewDispatcher(client, st, relay.Options{
		MaxRange: conf.MaxRange,
		Report:   report.CaptureError,
		Ping:     client.Ping,
		Checks: []relay.Check{
			{Name: "database", Run: func(ctx context.Context) (string, error) {
				if err := st.Ping(ctx); err != nil {
					return "", err
				}
				return "ok", nil
			}},
			{Name: "downloads", Run: func(context.Context) (string, error) {
				n, err := client.ScratchFiles()
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d files in %s", n, conf.DownloadDir), nil
			}},
			{Name: "telegram", Run: session.Check},
		},
	})

	g, ctx := errgroup.WithContext(ctx)
	if conf.HealthAddr != "" {
		srv := health.NewServer(conf.HealthAddr, st)
		g.Go(func() error { return srv.Run(ctx) })
	}
	g.Go(func() error {
		slog.Info("starting relay", "bot", session.IsBot(), "max_range", conf.MaxRange)
		return session.Serve(ctx, dispatcher.Handle)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		slog.Info("interrupted, exiting gracefully")
		return nil
	}
	return err
}
