package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spiffcs/repopulse/config"
	"github.com/spiffcs/repopulse/internal/filter"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/subscription"
)

// NewCmdSubscribe creates the subscribe command.
func NewCmdSubscribe(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe <owner/repo | url>",
		Short: "Track a repository for a chat",
		Long: `Track a repository for a chat. Only issues and pull requests created
after subscribing are announced. Subscribing again replaces the filter.

Unconnected subscribers may track a limited number of repositories; run
'repopulse connect' to lift the limit.`,
		Example: `  repopulse subscribe --chat 42 acme/widgets
  repopulse subscribe --chat 42 https://github.com/acme/widgets --include bug,p1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd, opts, args[0])
		},
	}
	addChatFlag(cmd, opts)
	addLabelFlags(cmd, opts)
	return cmd
}

// addLabelFlags registers --include and --exclude.
func addLabelFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringSliceVar(&opts.Include, "include", nil, "Only notify for items with any of these labels")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "Never notify for items with any of these labels")
}

func runSubscribe(cmd *cobra.Command, opts *Options, repo string) error {
	a, err := newApp(cmd.Context(), appNeeds{env: config.Needs{Store: true}})
	if err != nil {
		return err
	}
	defer a.close()

	sub, err := a.subs.Subscribe(cmd.Context(), opts.ChatID, repo, optionsFilter(opts))
	if errors.Is(err, subscription.ErrRepoLimit) {
		return fmt.Errorf("%w; run 'repopulse connect --chat %d' for unlimited repositories", err, opts.ChatID)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Subscribed chat %d to %s\n", color.GreenString("✓"), opts.ChatID, sub.RepoFullName)
	if !sub.Filter.IsEmpty() {
		fmt.Fprintf(out, "  include: %v  exclude: %v\n", sub.Filter.Include, sub.Filter.Exclude)
	}
	return nil
}

// optionsFilter builds a normalized filter from the label flags.
func optionsFilter(opts *Options) model.Filter {
	return filter.Normalize(model.Filter{Include: opts.Include, Exclude: opts.Exclude})
}

// NewCmdUnsubscribe creates the unsubscribe command.
func NewCmdUnsubscribe(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unsubscribe <owner/repo | url>",
		Short: "Stop tracking a repository for a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnsubscribe(cmd, opts, args[0])
		},
	}
	addChatFlag(cmd, opts)
	return cmd
}

func runUnsubscribe(cmd *cobra.Command, opts *Options, repo string) error {
	a, err := newApp(cmd.Context(), appNeeds{env: config.Needs{Store: true}})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.subs.Unsubscribe(cmd.Context(), opts.ChatID, repo); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Unsubscribed chat %d from %s\n", color.GreenString("✓"), opts.ChatID, repo)
	return nil
}
