package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"API_ID", "API_HASH", "BOT_TOKEN", "PHONE_NUMBER", "SENTRY_DSN", "SENTRY_ENVIRONMENT"} {
		t.Setenv(key, "")
	}
}

func TestTelegramCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   TelegramCredentials
		valid   bool
		missing string
	}{
		{name: "bot", creds: TelegramCredentials{AppID: 1, AppHash: "h", BotToken: "1:x"}, valid: true},
		{name: "user", creds: TelegramCredentials{AppID: 1, AppHash: "h", PhoneNumber: "+1"}, valid: true},
		{name: "no id", creds: TelegramCredentials{AppHash: "h", BotToken: "1:x"}, missing: "API_ID"},
		{name: "no hash", creds: TelegramCredentials{AppID: 1, BotToken: "1:x"}, missing: "API_HASH"},
		{name: "no mode", creds: TelegramCredentials{AppID: 1, AppHash: "h"}, missing: "BOT_TOKEN or PHONE_NUMBER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.valid {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.missing) {
				t.Errorf("Expected %s to be reported missing, got %v", tt.missing, err)
			}
		})
	}
}

func TestLoadCredentials_EnvWins(t *testing.T) {
	clearCredentialEnv(t)
	credPath := filepath.Join(t.TempDir(), "creds.toml")

	err := WriteCredentials(credPath, Credentials{
		Telegram: TelegramCredentials{AppID: 1, AppHash: "file-hash", PhoneNumber: "+100"},
	})
	if err != nil {
		t.Fatalf("WriteCredentials failed: %v", err)
	}

	info, err := os.Stat(credPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}

	t.Setenv("API_ID", "42")
	t.Setenv("BOT_TOKEN", "42:token")
	t.Setenv("SENTRY_DSN", "https://key@example.com/1")

	creds, err := LoadCredentials(credPath)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.Telegram.AppID != 42 {
		t.Errorf("Expected env API_ID 42, got %d", creds.Telegram.AppID)
	}
	if creds.Telegram.AppHash != "file-hash" {
		t.Errorf("Expected file hash to be kept, got %s", creds.Telegram.AppHash)
	}
	if !creds.Telegram.IsBot() {
		t.Error("Expected bot token from environment")
	}
	if creds.Sentry.DSN == "" {
		t.Error("Expected sentry DSN from environment")
	}
}

func TestLoadCredentials_MissingFile(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("API_ID", "7")
	t.Setenv("API_HASH", "hash")
	t.Setenv("BOT_TOKEN", "7:x")

	creds, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if err := creds.Telegram.Validate(); err != nil {
		t.Errorf("Expected valid credentials, got %v", err)
	}
}

func TestApplyEnv_InvalidAppID(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("API_ID", "not-a-number")

	if _, err := ApplyEnv(Credentials{}); err == nil {
		t.Error("Expected error for malformed API_ID")
	}
}

func TestPromptTelegramCredentials(t *testing.T) {
	var out strings.Builder
	in := strings.NewReader("123\nabc\n+15550001\n")

	creds, err := PromptTelegramCredentials(in, &out, TelegramCredentials{})
	if err != nil {
		t.Fatalf("PromptTelegramCredentials failed: %v", err)
	}
	if creds.AppID != 123 || creds.AppHash != "abc" || creds.PhoneNumber != "+15550001" {
		t.Errorf("Unexpected credentials %+v", creds)
	}
	if !strings.Contains(out.String(), "my.telegram.org") {
		t.Error("Expected instructions in output")
	}
}

func TestPromptTelegramCredentials_OnlyMissing(t *testing.T) {
	var out strings.Builder
	in := strings.NewReader("+15550002")

	creds, err := PromptTelegramCredentials(in, &out, TelegramCredentials{AppID: 1, AppHash: "h"})
	if err != nil {
		t.Fatalf("PromptTelegramCredentials failed: %v", err)
	}
	if creds.PhoneNumber != "+15550002" {
		t.Errorf("Expected phone from input, got %q", creds.PhoneNumber)
	}
	if strings.Contains(out.String(), "API_ID") {
		t.Error("Expected no prompt for known API_ID")
	}
}

func TestPromptTelegramCredentials_BadID(t *testing.T) {
	var out strings.Builder
	if _, err := PromptTelegramCredentials(strings.NewReader("abc\n"), &out, TelegramCredentials{}); err == nil {
		t.Error("Expected error for malformed API_ID")
	}
}
