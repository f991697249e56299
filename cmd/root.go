package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spiffcs/repopulse/internal/log"
)

// New creates the root command with all subcommands registered.
func New() *cobra.Command {
	opts := NewOptions()

	rootCmd := &cobra.Command{
		Use:   "repopulse",
		Short: "GitHub issue and pull request notifier",
		Long: `repopulse watches GitHub repositories and sends a chat notification
for every new issue and pull request, filtered by labels per subscription.

Run 'repopulse serve' for the poller and HTTP server, or use the
subcommands to manage subscriptions.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Initialize(opts.Verbosity, os.Stderr)
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().CountVarP(&opts.Verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug, -vvv trace)")

	// Register subcommands
	rootCmd.AddCommand(NewCmdServe(opts))
	rootCmd.AddCommand(NewCmdPoll(opts))
	rootCmd.AddCommand(NewCmdSubscribe(opts))
	rootCmd.AddCommand(NewCmdUnsubscribe(opts))
	rootCmd.AddCommand(NewCmdFilter(opts))
	rootCmd.AddCommand(NewCmdList(opts))
	rootCmd.AddCommand(NewCmdLabels(opts))
	rootCmd.AddCommand(NewCmdConnect(opts))
	rootCmd.AddCommand(NewCmdDisconnect(opts))
	rootCmd.AddCommand(NewCmdStatus(opts))
	rootCmd.AddCommand(NewCmdMigrate(opts))
	rootCmd.AddCommand(NewCmdRateLimit(opts))
	rootCmd.AddCommand(NewCmdConfig())
	rootCmd.AddCommand(NewCmdVersion())

	return rootCmd
}

// addChatFlag registers the required --chat flag.
func addChatFlag(cmd *cobra.Command, opts *Options) {
	cmd.Flags().Int64Var(&opts.ChatID, "chat", 0, "Chat id of the subscriber (required)")
	_ = cmd.MarkFlagRequired("chat")
}

// addFormatFlag registers the --output flag.
func addFormatFlag(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVarP(&opts.Format, "output", "o", opts.Format, "Output format (table, json, markdown)")
}
