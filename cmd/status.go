package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spiffcs/repopulse/config"
	"github.com/spiffcs/repopulse/internal/output"
)

// NewCmdStatus creates the status command.
func NewCmdStatus(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a chat's connection state and repository count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}
	addChatFlag(cmd, opts)
	addFormatFlag(cmd, opts)
	return cmd
}

func runStatus(cmd *cobra.Command, opts *Options) error {
	format, err := output.ParseFormat(opts.Format)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), appNeeds{env: config.Needs{Store: true}})
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.subs.Status(cmd.Context(), opts.ChatID)
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Status(st, cmd.OutOrStdout())
}
