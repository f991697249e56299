package config

import (
	"strings"
	"testing"

	"github.com/spiffcs/repopulse/internal/store"
)

func TestLoadEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GITHUB_TOKEN", "ghp_fallback")
	t.Setenv("GITHUB_CLIENT_ID", "id")
	t.Setenv("GITHUB_CLIENT_SECRET", "secret")
	t.Setenv("GITHUB_WEBHOOK_SECRET", "")

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error: %v", err)
	}
	if e.GitHubToken != "ghp_fallback" {
		t.Errorf("GitHubToken = %q", e.GitHubToken)
	}
	if !e.OAuthEnabled() {
		t.Error("OAuthEnabled() = false, want true")
	}
	if e.WebhookEnabled() {
		t.Error("WebhookEnabled() = true, want false")
	}
}

func TestEnvValidate(t *testing.T) {
	sqlite := DefaultSettings()
	sqlite.StoreDriver = store.DriverSQLite
	logSink := DefaultSettings()
	logSink.Sink = SinkLog
	public := DefaultSettings()
	public.PublicURL = "https://pulse.example.com"

	tests := []struct {
		name     string
		env      Env
		settings Settings
		needs    Needs
		wantErr  string
	}{
		{
			name:     "nothing needed",
			settings: DefaultSettings(),
		},
		{
			name:     "fallback token missing",
			settings: DefaultSettings(),
			needs:    Needs{FallbackToken: true},
			wantErr:  "GITHUB_TOKEN",
		},
		{
			name:     "postgres needs a database url",
			settings: DefaultSettings(),
			needs:    Needs{Store: true},
			wantErr:  "DATABASE_URL",
		},
		{
			name:     "sqlite needs no database url",
			settings: sqlite,
			needs:    Needs{Store: true},
		},
		{
			name:     "telegram sink needs a bot token",
			settings: DefaultSettings(),
			needs:    Needs{Sink: true},
			wantErr:  "TELEGRAM_BOT_TOKEN",
		},
		{
			name:     "log sink needs nothing",
			settings: logSink,
			needs:    Needs{Sink: true},
		},
		{
			name:     "oauth needs client credentials",
			settings: public,
			needs:    Needs{OAuth: true},
			wantErr:  "GITHUB_CLIENT_ID, GITHUB_CLIENT_SECRET",
		},
		{
			name:     "oauth needs a public url",
			env:      Env{GitHubClientID: "id", GitHubClientSecret: "secret"},
			settings: DefaultSettings(),
			needs:    Needs{OAuth: true},
			wantErr:  "public_url",
		},
		{
			name:     "half configured oauth",
			env:      Env{GitHubClientID: "id"},
			settings: DefaultSettings(),
			wantErr:  "must be set together",
		},
		{
			name:     "everything present",
			env:      Env{GitHubToken: "t", DatabaseURL: "postgres://", TelegramBotToken: "b", GitHubClientID: "id", GitHubClientSecret: "s"},
			settings: public,
			needs:    Needs{FallbackToken: true, Store: true, Sink: true, OAuth: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate(tt.settings, tt.needs)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
