package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Credentials holds all application credentials
type Credentials struct {
	Telegram TelegramCredentials `toml:"telegram"`
	Sentry   SentryCredentials   `toml:"sentry"`
}

// TelegramCredentials holds Telegram API credentials. Either BotToken or
// PhoneNumber selects the session mode; the bot token wins when both are set.
type TelegramCredentials struct {
	AppID       int    `toml:"api_id"`
	AppHash     string `toml:"api_hash"`
	BotToken    string `toml:"bot_token"`
	PhoneNumber string `toml:"phone"`
}

// IsBot reports whether the credentials select a bot session
func (tc TelegramCredentials) IsBot() bool {
	return tc.BotToken != ""
}

// Validate explains which credential is missing
func (tc TelegramCredentials) Validate() error {
	var missing []string
	if tc.AppID == 0 {
		missing = append(missing, "API_ID")
	}
	if tc.AppHash == "" {
		missing = append(missing, "API_HASH")
	}
	if tc.BotToken == "" && tc.PhoneNumber == "" {
		missing = append(missing, "BOT_TOKEN or PHONE_NUMBER")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing telegram credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SentryCredentials configures error reporting, disabled when DSN is empty
type SentryCredentials struct {
	DSN         string `toml:"dsn"`
	Environment string `toml:"environment"`
}

// LoadEnv loads a .env file from the working directory when one exists
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
}

// ApplyEnv overrides credentials with the environment variables API_ID,
// API_HASH, BOT_TOKEN, PHONE_NUMBER and SENTRY_DSN.
func ApplyEnv(creds Credentials) (Credentials, error) {
	if v := os.Getenv("API_ID"); v != "" {
		id, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return creds, fmt.Errorf("invalid API_ID %q with %w", v, err)
		}
		creds.Telegram.AppID = id
	}
	if v := os.Getenv("API_HASH"); v != "" {
		creds.Telegram.AppHash = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		creds.Telegram.BotToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("PHONE_NUMBER"); v != "" {
		creds.Telegram.PhoneNumber = strings.TrimSpace(v)
	}
	if v := os.Getenv("SENTRY_DSN"); v != "" {
		creds.Sentry.DSN = strings.TrimSpace(v)
	}
	if v := os.Getenv("SENTRY_ENVIRONMENT"); v != "" {
		creds.Sentry.Environment = v
	}
	return creds, nil
}

// LoadCredentials reads the credentials file when present and applies the
// environment on top of it
func LoadCredentials(path string) (Credentials, error) {
	creds, err := ReadCredentials(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return creds, err
	}
	return ApplyEnv(creds)
}

// ReadCredentials reads credentials from the specified path
func ReadCredentials(path string) (Credentials, error) {
	var creds Credentials

	data, err := os.ReadFile(path)
	if err != nil {
		return creds, err
	}

	if _, err := toml.Decode(string(data), &creds); err != nil {
		return creds, fmt.Errorf("failed to decode credentials at %s: %w", path, err)
	}

	return creds, nil
}

// WriteCredentials writes credentials to the specified path
func WriteCredentials(path string, creds Credentials) error {
	blob, err := toml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	basePath := filepath.Dir(path)
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return fmt.Errorf("failed to create credentials directory at '%s': %w", basePath, err)
	}

	// Only the owner can read the file
	if err := os.WriteFile(path, blob, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file at '%s': %w", path, err)
	}

	return nil
}

// PromptTelegramCredentials asks for the user session credentials that are
// still missing from creds
func PromptTelegramCredentials(in io.Reader, out io.Writer, creds TelegramCredentials) (TelegramCredentials, error) {
	reader := bufio.NewReader(in)
	ask := func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	if creds.AppID == 0 || creds.AppHash == "" {
		fmt.Fprintln(out, "Telegram API credentials not found.")
		fmt.Fprintln(out, "Create an application at https://my.telegram.org under 'API development tools'.")
		fmt.Fprintln(out)
	}

	if creds.AppID == 0 {
		v, err := ask("Enter API_ID: ")
		if err != nil {
			return creds, fmt.Errorf("failed to read API_ID: %w", err)
		}
		if creds.AppID, err = strconv.Atoi(v); err != nil {
			return creds, fmt.Errorf("invalid API_ID format: %w", err)
		}
	}

	if creds.AppHash == "" {
		v, err := ask("Enter API_HASH: ")
		if err != nil {
			return creds, fmt.Errorf("failed to read API_HASH: %w", err)
		}
		creds.AppHash = v
	}

	if creds.PhoneNumber == "" {
		v, err := ask("Enter phone number in international format (e.g. +1234567890): ")
		if err != nil {
			return creds, fmt.Errorf("failed to read phone number: %w", err)
		}
		creds.PhoneNumber = v
	}

	if creds.AppID == 0 || creds.AppHash == "" || creds.PhoneNumber == "" {
		return creds, fmt.Errorf("all credential fields are required")
	}
	return creds, nil
}

// LoadOrPromptTelegramCredentials returns user session credentials for an
// interactive login, prompting for and saving whatever is missing
func LoadOrPromptTelegramCredentials(credPath string) (TelegramCredentials, error) {
	creds, err := LoadCredentials(credPath)
	if err != nil {
		return TelegramCredentials{}, err
	}
	if creds.Telegram.AppID != 0 && creds.Telegram.AppHash != "" && creds.Telegram.PhoneNumber != "" {
		return creds.Telegram, nil
	}

	telegramCreds, err := PromptTelegramCredentials(os.Stdin, os.Stdout, creds.Telegram)
	if err != nil {
		return TelegramCredentials{}, err
	}

	// Keep the stored file free of environment-only values
	stored, err := ReadCredentials(credPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return telegramCreds, err
	}
	stored.Telegram.AppID = telegramCreds.AppID
	stored.Telegram.AppHash = telegramCreds.AppHash
	stored.Telegram.PhoneNumber = telegramCreds.PhoneNumber
	if err := WriteCredentials(credPath, stored); err != nil {
		return telegramCreds, fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("Credentials saved to %s\n\n", credPath)
	return telegramCreds, nil
}
