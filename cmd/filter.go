package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spiffcs/repopulse/config"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/session"
	"github.com/spiffcs/repopulse/internal/urlutil"
)

type filterMode struct {
	draft   bool
	apply   bool
	discard bool
}

// NewCmdFilter creates the filter command.
func NewCmdFilter(opts *Options) *cobra.Command {
	var mode filterMode

	cmd := &cobra.Command{
		Use:   "filter <owner/repo | url>",
		Short: "Show or change the label filter of a subscription",
		Long: `Show or change the label filter of a subscription.

Without flags the current filter is shown. --include and --exclude replace
the filter immediately; an empty value clears that side.

With --draft the change is kept in the session store for an hour instead,
so a filter can be built over several commands and then saved with --apply
or dropped with --discard. Drafts require REDIS_URL.`,
		Example: `  repopulse filter --chat 42 acme/widgets --include bug --exclude wontfix
  repopulse filter --chat 42 acme/widgets --draft --include bug
  repopulse filter --chat 42 acme/widgets --draft --exclude docs
  repopulse filter --chat 42 acme/widgets --apply`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(cmd, opts, mode, args[0])
		},
	}

	addChatFlag(cmd, opts)
	addLabelFlags(cmd, opts)
	cmd.Flags().BoolVar(&mode.draft, "draft", false, "Stage the change in a draft instead of saving it")
	cmd.Flags().BoolVar(&mode.apply, "apply", false, "Save the staged draft")
	cmd.Flags().BoolVar(&mode.discard, "discard", false, "Drop the staged draft")
	cmd.MarkFlagsMutuallyExclusive("draft", "apply", "discard")

	return cmd
}

func runFilter(cmd *cobra.Command, opts *Options, mode filterMode, input string) error {
	repo, err := urlutil.ParseRepoFullName(input)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), appNeeds{env: config.Needs{Store: true}})
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	changed := cmd.Flags().Changed("include") || cmd.Flags().Changed("exclude")

	current, err := a.subs.Get(ctx, opts.ChatID, repo)
	if err != nil {
		return err
	}

	if !mode.draft && !mode.apply && !mode.discard {
		if !changed {
			printFilter(out, repo, current.Filter)
			return nil
		}
		f := mergeFilter(current.Filter, cmd, opts)
		sub, err := a.subs.SetFilter(ctx, opts.ChatID, repo, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s Filter saved\n", color.GreenString("✓"))
		printFilter(out, repo, sub.Filter)
		return nil
	}

	if a.env.RedisURL == "" {
		return errors.New("filter drafts require REDIS_URL")
	}
	drafts := session.NewDrafts(a.sessions)

	draft, err := drafts.Load(ctx, opts.ChatID)
	switch {
	case errors.Is(err, session.ErrNotFound), err == nil && draft.Repo != repo:
		draft = session.Draft{Repo: repo, Filter: current.Filter}
	case err != nil:
		return err
	}

	switch {
	case mode.discard:
		if err := drafts.Clear(ctx, opts.ChatID); err != nil {
			return err
		}
		fmt.Fprintln(out, "Draft discarded.")
		return nil

	case mode.apply:
		sub, err := a.subs.SetFilter(ctx, opts.ChatID, repo, draft.Filter)
		if err != nil {
			return err
		}
		if err := drafts.Clear(ctx, opts.ChatID); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s Draft applied\n", color.GreenString("✓"))
		printFilter(out, repo, sub.Filter)
		return nil

	default:
		draft.Filter = mergeFilter(draft.Filter, cmd, opts)
		draft, err = drafts.Save(ctx, opts.ChatID, draft)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Draft %s (not saved, run with --apply):\n", draft.ID)
		printFilter(out, repo, draft.Filter)
		return nil
	}
}

// mergeFilter replaces the sides of f whose flags were given.
func mergeFilter(f model.Filter, cmd *cobra.Command, opts *Options) model.Filter {
	given := optionsFilter(opts)
	if cmd.Flags().Changed("include") {
		f.Include = given.Include
	}
	if cmd.Flags().Changed("exclude") {
		f.Exclude = given.Exclude
	}
	return f
}

func printFilter(w io.Writer, repo string, f model.Filter) {
	fmt.Fprintf(w, "%s\n", color.CyanString(repo))
	if f.IsEmpty() {
		fmt.Fprintln(w, "  no filter (all items are delivered)")
		return
	}
	fmt.Fprintf(w, "  include: %s\n", labelsOrNone(f.Include))
	fmt.Fprintf(w, "  exclude: %s\n", labelsOrNone(f.Exclude))
}

func labelsOrNone(labels []string) string {
	if len(labels) == 0 {
		return "-"
	}
	return fmt.Sprint(labels)
}
