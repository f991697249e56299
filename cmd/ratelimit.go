package cmd

import (
	"fmt"
	"io"
	"time"

	gh "github.com/google/go-github/v57/github"
	"github.com/spf13/cobra"

	"github.com/spiffcs/repopulse/config"
)

// NewCmdRateLimit creates the ratelimit command.
func NewCmdRateLimit(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Check GitHub API rate limit status",
		Long:  `Display current GitHub API rate limit status including remaining quota and reset time.`,
	}
	cmd.AddCommand(NewCmdRateLimitStatus(opts))
	return cmd
}

// NewCmdRateLimitStatus creates the ratelimit status subcommand.
func NewCmdRateLimitStatus(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show current rate limit status",
		Long: `Display the current GitHub API rate limit status of the shared token,
or of a chat's own credential with --chat.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRateLimitStatus(cmd, opts)
		},
	}
	cmd.Flags().Int64Var(&opts.ChatID, "chat", 0, "Chat id whose credential is checked (default: shared token)")
	return cmd
}

func runRateLimitStatus(cmd *cobra.Command, opts *Options) error {
	a, err := newApp(cmd.Context(), appNeeds{env: config.Needs{FallbackToken: true, Store: true}})
	if err != nil {
		return err
	}
	defer a.close()

	resolver, err := a.resolver()
	if err != nil {
		return err
	}
	cred := resolver.Resolve(cmd.Context(), opts.ChatID)

	client, err := a.pool.Client(cred.Token)
	if err != nil {
		return err
	}
	limits, err := client.RateLimits(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "GitHub API Rate Limits (%s credential):\n\n", cred.Source)
	now := time.Now()
	printRate(out, "Core API:  ", limits.Core, now)
	printRate(out, "Search API:", limits.Search, now)
	printRate(out, "GraphQL:   ", limits.GraphQL, now)
	return nil
}

func printRate(w io.Writer, name string, r *gh.Rate, now time.Time) {
	if r == nil {
		return
	}
	resetIn := r.Reset.Time.Sub(now).Round(time.Second)
	if resetIn < 0 {
		resetIn = 0
	}
	fmt.Fprintf(w, "%s %d/%d remaining (resets in %s)\n", name, r.Remaining, r.Limit, resetIn)
}
