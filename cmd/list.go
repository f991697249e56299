package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spiffcs/repopulse/config"
	"github.com/spiffcs/repopulse/internal/output"
)

// NewCmdList creates the list command.
func NewCmdList(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List a chat's subscriptions and filters",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}
	addChatFlag(cmd, opts)
	addFormatFlag(cmd, opts)
	return cmd
}

func runList(cmd *cobra.Command, opts *Options) error {
	format, err := output.ParseFormat(opts.Format)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), appNeeds{env: config.Needs{Store: true}})
	if err != nil {
		return err
	}
	defer a.close()

	subs, err := a.subs.List(cmd.Context(), opts.ChatID)
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Subscriptions(subs, cmd.OutOrStdout())
}
