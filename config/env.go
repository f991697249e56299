package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/store"
)

// Env holds the secrets and endpoints read from the environment.
// Tokens are never stored in config files.
type Env struct {
	GitHubToken         string `env:"GITHUB_TOKEN"`
	DatabaseURL         string `env:"DATABASE_URL"`
	EncryptionKey       string `env:"ENCRYPTION_KEY"`
	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIEndpoint string `env:"TELEGRAM_API_ENDPOINT"`
	RedisURL            string `env:"REDIS_URL"`
	GitHubClientID      string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret  string `env:"GITHUB_CLIENT_SECRET"`
	GitHubWebhookSecret string `env:"GITHUB_WEBHOOK_SECRET"`
	GitHubAPIURL        string `env:"GITHUB_API_URL"`
}

// LoadEnv reads a .env file when present and then the process environment.
func LoadEnv() (*Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var e Env
	if err := env.Load(&e, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	log.Debug("environment loaded",
		"oauth", e.OAuthEnabled(),
		"webhook", e.WebhookEnabled(),
		"encryption", e.EncryptionKey != "",
		"redis", e.RedisURL != "")
	return &e, nil
}

// Needs lists what a command requires from the environment.
type Needs struct {
	// FallbackToken requires GITHUB_TOKEN.
	FallbackToken bool
	// Store requires the credentials of the configured store driver.
	Store bool
	// Sink requires the credentials of the configured notification sink.
	Sink bool
	// OAuth requires a GitHub OAuth application.
	OAuth bool
}

// Validate checks that the environment satisfies needs under settings s.
// All problems are reported together.
func (e *Env) Validate(s Settings, needs Needs) error {
	var missing []string
	if needs.FallbackToken && e.GitHubToken == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if needs.Store && s.StoreDriver == store.DriverPostgres && e.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if needs.Sink && s.Sink == SinkTelegram && e.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if needs.OAuth {
		if e.GitHubClientID == "" {
			missing = append(missing, "GITHUB_CLIENT_ID")
		}
		if e.GitHubClientSecret == "" {
			missing = append(missing, "GITHUB_CLIENT_SECRET")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if needs.OAuth && s.PublicURL == "" {
		return errors.New("server.public_url is required for GitHub OAuth")
	}

	if (e.GitHubClientID == "") != (e.GitHubClientSecret == "") {
		return errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together")
	}
	return nil
}

// OAuthEnabled reports whether a GitHub OAuth application is configured.
func (e *Env) OAuthEnabled() bool {
	return e.GitHubClientID != "" && e.GitHubClientSecret != ""
}

// WebhookEnabled reports whether webhook deliveries can be verified.
func (e *Env) WebhookEnabled() bool {
	return e.GitHubWebhookSecret != ""
}
