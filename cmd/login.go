package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scipunch/tgrelay/config"
	"github.com/scipunch/tgrelay/telegram"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with a user account",
	Long: `Log in with a Telegram user account and store the session file.

A user session can join private channels by invite link, which bot
accounts cannot do. Missing API_ID, API_HASH and phone number are asked
for and saved to creds.toml beside the config file. A verification code is
then sent to the Telegram app, followed by the 2FA password if one is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		conf, err := loadConfig()
		if err != nil {
			return err
		}

		creds, err := config.LoadOrPromptTelegramCredentials(credentialsPath())
		if err != nil {
			return fmt.Errorf("failed to load credentials with %w", err)
		}

		st, err := openStore(ctx, conf)
		if err != nil {
			return err
		}
		defer st.Close()

		session, err := telegram.NewSession(telegram.Options{
			AppID:          creds.AppID,
			AppHash:        creds.AppHash,
			PhoneNumber:    creds.PhoneNumber,
			SessionPath:    conf.SessionPath,
			DownloadDir:    conf.DownloadDir,
			FloodWaitLimit: conf.FloodWaitLimit(),
			Debug:          isDebug(),
		}, st)
		if err != nil {
			return fmt.Errorf("failed to create telegram session with %w", err)
		}

		if err := session.Login(ctx, telegram.NewPrompter(creds.PhoneNumber)); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Logged in. Unset BOT_TOKEN and run 'tgrelay run' to use the user session.\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func isDebug() bool {
	return os.Getenv("DEBUG") != ""
}
