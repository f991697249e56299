package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/poller"
	"github.com/spiffcs/repopulse/internal/subscription"
)

// MarkdownFormatter formats output as GitHub-flavored markdown
type MarkdownFormatter struct{}

// escapeCell makes text safe inside a markdown table cell.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Subscriptions outputs subscriptions as a markdown table
func (f *MarkdownFormatter) Subscriptions(subs []model.Subscription, w io.Writer) error {
	if len(subs) == 0 {
		_, err := fmt.Fprintln(w, "_No subscriptions._")
		return err
	}

	var b strings.Builder
	b.WriteString("| Repository | Include | Exclude |\n")
	b.WriteString("|---|---|---|\n")
	for _, s := range subs {
		repo := model.Repository{FullName: s.RepoFullName}
		fmt.Fprintf(&b, "| [%s](%s) | %s | %s |\n",
			s.RepoFullName, repo.HTMLURL(),
			escapeCell(filterText(s.Filter.Include)),
			escapeCell(filterText(s.Filter.Exclude)))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Status outputs a subscriber summary as a markdown list
func (f *MarkdownFormatter) Status(st subscription.Status, w io.Writer) error {
	connected := "no"
	if st.Connected {
		connected = "yes (@" + st.GitHubUsername + ")"
	}
	_, err := fmt.Fprintf(w, "- **Chat:** %d\n- **Connected:** %s\n- **Repositories:** %d / %s\n",
		st.ChatID, connected, st.RepoCount, limitText(st.RepoLimit))
	return err
}

// Cycle outputs a poll cycle summary as a markdown table
func (f *MarkdownFormatter) Cycle(res poller.CycleResult, w io.Writer) error {
	if res.Err != nil {
		_, err := fmt.Fprintf(w, "**Cycle %s failed:** %v\n", res.ID, res.Err)
		return err
	}
	_, err := fmt.Fprintf(w, "| Pairs | Advanced | Failed | Skipped | Delivered | Filtered |\n"+
		"|---|---|---|---|---|---|\n"+
		"| %d | %d | %d | %d | %d | %d |\n",
		res.Pairs, res.Advanced, res.Failed, res.Skipped, res.Delivered, res.Filtered)
	return err
}
