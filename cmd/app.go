package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/spiffcs/repopulse/config"
	"github.com/spiffcs/repopulse/internal/credential"
	"github.com/spiffcs/repopulse/internal/crypto"
	"github.com/spiffcs/repopulse/internal/ghclient"
	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/notify"
	"github.com/spiffcs/repopulse/internal/poller"
	"github.com/spiffcs/repopulse/internal/session"
	"github.com/spiffcs/repopulse/internal/store"
	"github.com/spiffcs/repopulse/internal/store/postgres"
	"github.com/spiffcs/repopulse/internal/store/sqlite"
	"github.com/spiffcs/repopulse/internal/subscription"
)

// appNeeds lists what a command needs wired up.
type appNeeds struct {
	env config.Needs
	// migrate applies pending postgres migrations on startup.
	migrate bool
}

// app holds the collaborators shared by the commands.
type app struct {
	settings config.Settings
	env      *config.Env
	clock    clockwork.Clock

	store    store.Store
	sessions session.Store
	crypto   crypto.Service
	sink     notify.Sink
	pool     *ghclient.Pool
	oauth    *oauth2.Config
	subs     *subscription.Service

	closers []func() error
}

// newApp loads configuration and the environment and connects to the
// services a command needs. Call close when done.
func newApp(ctx context.Context, needs appNeeds) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	settings := cfg.Settings()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.SetFormat(settings.LogFormat)

	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	if err := env.Validate(settings, needs.env); err != nil {
		return nil, err
	}

	a := &app{settings: settings, env: env, clock: clockwork.NewRealClock()}
	if err := a.init(ctx, needs); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, needs appNeeds) error {
	st, err := openStore(ctx, a.settings, a.env, needs.migrate)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	if a.env.RedisURL != "" {
		rs, err := session.NewRedisStore(ctx, a.env.RedisURL)
		if err != nil {
			return err
		}
		a.sessions = rs
	} else {
		a.sessions = session.NewMemoryStore(a.clock)
	}
	a.closers = append(a.closers, a.sessions.Close)

	if a.env.EncryptionKey != "" {
		svc, err := crypto.NewAESGCMService(a.env.EncryptionKey)
		if err != nil {
			return fmt.Errorf("failed to initialize encryption: %w", err)
		}
		a.crypto = svc
	} else {
		log.Warn("ENCRYPTION_KEY not set, subscriber tokens are stored unencrypted")
		a.crypto = crypto.NoopService{}
	}

	if needs.env.Sink {
		sink, err := newSink(a.settings, a.env)
		if err != nil {
			return err
		}
		a.sink = sink
	}

	a.pool = ghclient.NewPool(a.githubOptions()...)

	opts := []subscription.Option{subscription.WithClock(a.clock)}
	if a.sink != nil {
		opts = append(opts, subscription.WithSink(a.sink))
	}
	if a.env.OAuthEnabled() && a.settings.PublicURL != "" {
		a.oauth = &oauth2.Config{
			ClientID:     a.env.GitHubClientID,
			ClientSecret: a.env.GitHubClientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  strings.TrimRight(a.settings.PublicURL, "/") + "/github/callback",
			Scopes:       subscription.OAuthScopes,
		}
		opts = append(opts, subscription.WithOAuth(a.oauth, session.NewOAuthStates(a.sessions)))
	}
	a.subs = subscription.NewService(a.store, a.crypto, opts...)
	return nil
}

// githubOptions builds the GitHub client options from settings.
func (a *app) githubOptions() []ghclient.Option {
	opts := []ghclient.Option{
		ghclient.WithTimeout(a.settings.RequestTimeout),
		ghclient.WithPageSize(a.settings.PageSize),
		ghclient.WithRateLimit(a.settings.RequestsPerSecond, a.settings.Burst),
		ghclient.WithClock(a.clock),
	}
	if a.env.GitHubAPIURL != "" {
		opts = append(opts, ghclient.WithBaseURL(a.env.GitHubAPIURL))
	}
	return opts
}

// resolver builds the credential resolver with the shared fallback token.
func (a *app) resolver() (*credential.Resolver, error) {
	return credential.NewResolver(a.store, a.crypto, a.env.GitHubToken)
}

// orchestrator builds the poll orchestrator from settings.
func (a *app) orchestrator() (*poller.Orchestrator, error) {
	resolver, err := a.resolver()
	if err != nil {
		return nil, err
	}
	return poller.New(a.store, resolver, a.pool, a.sink,
		poller.WithClock(a.clock),
		poller.WithWorkers(a.settings.Workers),
		poller.WithMaxTitleWidth(a.settings.MaxTitleWidth),
		poller.WithAdvanceOnDispatchError(a.settings.AdvanceOnDispatchError),
	), nil
}

// close releases everything newApp opened, in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("failed to close resource", "error", err)
		}
	}
	a.closers = nil
}

// openStore connects to the configured store driver.
func openStore(ctx context.Context, s config.Settings, env *config.Env, migrate bool) (store.Store, error) {
	switch s.StoreDriver {
	case store.DriverSQLite:
		return sqlite.Open(s.SQLitePath)
	case store.DriverPostgres:
		db, err := postgres.Connect(ctx, env.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := db.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", s.StoreDriver)
	}
}

// newSink creates the configured notification sink.
func newSink(s config.Settings, env *config.Env) (notify.Sink, error) {
	switch s.Sink {
	case config.SinkLog:
		return notify.LogSink{}, nil
	case config.SinkTelegram:
		sink, err := notify.NewTelegramSink(env.TelegramBotToken, env.TelegramAPIEndpoint, &http.Client{Timeout: s.RequestTimeout})
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, errors.New("unsupported notification sink: " + s.Sink)
	}
}
