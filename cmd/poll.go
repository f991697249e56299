package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spiffcs/repopulse/config"
	"github.com/spiffcs/repopulse/internal/output"
)

// NewCmdPoll creates the poll command.
func NewCmdPoll(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run a single poll cycle",
		Long: `Run one poll cycle over every subscriber and subscription, deliver
notifications and advance watermarks, then print a summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(cmd, opts)
		},
	}
	addFormatFlag(cmd, opts)
	return cmd
}

func runPoll(cmd *cobra.Command, opts *Options) error {
	format, err := output.ParseFormat(opts.Format)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), appNeeds{
		env: config.Needs{FallbackToken: true, Store: true, Sink: true},
	})
	if err != nil {
		return err
	}
	defer a.close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	res := orch.RunCycle(cmd.Context())
	if err := output.NewFormatter(format).Cycle(res, cmd.OutOrStdout()); err != nil {
		return err
	}
	return res.Err
}
