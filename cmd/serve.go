package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spiffcs/repopulse/config"
	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/poller"
	"github.com/spiffcs/repopulse/internal/server"
)

const shutdownTimeout = 10 * time.Second

// NewCmdServe creates the serve command.
func NewCmdServe(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poller and the HTTP server",
		Long: `Run the poll loop and the HTTP server until interrupted.

The server exposes /healthz, /metrics and /status/:chatID, plus the GitHub
OAuth callback when GITHUB_CLIENT_ID/GITHUB_CLIENT_SECRET and
server.public_url are set, and the webhook receiver when
GITHUB_WEBHOOK_SECRET is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, _ *Options) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appNeeds{
		env:     config.Needs{FallbackToken: true, Store: true, Sink: true},
		migrate: true,
	})
	if err != nil {
		return err
	}
	defer a.close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	sched := poller.NewScheduler(orch, a.settings.PollInterval, a.clock)

	deps := server.Deps{Store: a.store, Subscriptions: a.subs}
	if a.oauth != nil {
		deps.OAuth = server.NewGitHubOAuth(a.oauth, a.githubOptions()...)
		if a.env.RedisURL == "" {
			log.Warn("REDIS_URL not set, connect links only work when created by this process")
		}
	}
	if a.env.WebhookEnabled() {
		deps.Webhook = server.NewWebhook(a.env.GitHubWebhookSecret, a.store, a.sink, a.clock, a.settings.MaxTitleWidth)
	}
	srv := server.New(a.settings.ServerAddr, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
