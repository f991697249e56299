package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spiffcs/repopulse/config"
	"github.com/spiffcs/repopulse/internal/urlutil"
)

// NewCmdLabels creates the labels command.
func NewCmdLabels(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels <owner/repo | url>",
		Short: "List a repository's labels",
		Long: `List the labels defined on a repository, using the chat's own GitHub
credential when connected and the shared token otherwise. Useful when
choosing --include and --exclude filters.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLabels(cmd, opts, args[0])
		},
	}
	cmd.Flags().Int64Var(&opts.ChatID, "chat", 0, "Chat id whose credential is used (default: shared token)")
	return cmd
}

func runLabels(cmd *cobra.Command, opts *Options, input string) error {
	repo, err := urlutil.ParseRepoFullName(input)
	if err != nil {
		return err
	}

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

	labels, err := a.pool.ListLabels(cmd.Context(), repo, cred.Token)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(labels) == 0 {
		fmt.Fprintf(out, "%s has no labels.\n", repo)
		return nil
	}
	fmt.Fprintf(out, "Labels of %s (%s credential):\n", color.CyanString(repo), cred.Source)
	for _, l := range labels {
		fmt.Fprintf(out, "  %s\n", l)
	}
	return nil
}
