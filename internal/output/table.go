package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/spiffcs/repopulse/internal/format"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/poller"
	"github.com/spiffcs/repopulse/internal/subscription"
)

// Column widths
const (
	colRepo   = 40
	colFilter = 30
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// TableFormatter formats output as a terminal table
type TableFormatter struct {
	// Now is used for relative ages; zero means time.Now.
	Now time.Time
}

func (f *TableFormatter) now() time.Time {
	if f.Now.IsZero() {
		return time.Now()
	}
	return f.Now
}

// hyperlink creates a clickable terminal hyperlink using OSC 8
// Format: \033]8;;URL\033\\TEXT\033]8;;\033\\
func hyperlink(text, url string) string {
	// Only use hyperlinks if stdout is a terminal
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return text
	}
	return fmt.Sprintf("\033]8;;%s\033\\%s\033]8;;\033\\", url, text)
}

// Subscriptions outputs subscriptions as a table
func (f *TableFormatter) Subscriptions(subs []model.Subscription, w io.Writer) error {
	if len(subs) == 0 {
		fmt.Fprintln(w, "No subscriptions found.")
		return nil
	}

	now := f.now()
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Repository", "Include", "Exclude", "Since").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 3:
				return dimStyle
			default:
				return cellStyle
			}
		})

	for _, s := range subs {
		repo := model.Repository{FullName: s.RepoFullName}
		t.Row(
			hyperlink(format.Truncate(s.RepoFullName, colRepo), repo.HTMLURL()),
			format.Truncate(filterText(s.Filter.Include), colFilter),
			format.Truncate(filterText(s.Filter.Exclude), colFilter),
			format.RelativeAge(s.CreatedAt, now),
		)
	}

	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%d subscription(s)\n", len(subs))
	return nil
}

// Status outputs a subscriber summary
func (f *TableFormatter) Status(st subscription.Status, w io.Writer) error {
	if !st.Exists {
		fmt.Fprintf(w, "Chat %d has no subscriptions.\n", st.ChatID)
		return nil
	}

	fmt.Fprintf(w, "Chat:          %d\n", st.ChatID)
	if st.Connected {
		fmt.Fprintf(w, "GitHub:        %s\n", color.GreenString("connected as @%s", st.GitHubUsername))
	} else {
		fmt.Fprintf(w, "GitHub:        %s\n", color.YellowString("not connected (shared token)"))
	}
	fmt.Fprintf(w, "Repositories:  %d / %s\n", st.RepoCount, limitText(st.RepoLimit))
	return nil
}

// Cycle outputs a poll cycle summary
func (f *TableFormatter) Cycle(res poller.CycleResult, w io.Writer) error {
	if res.Err != nil {
		fmt.Fprintf(w, "%s cycle %s: %v\n", color.RedString("✗"), res.ID, res.Err)
		return nil
	}

	mark := color.GreenString("✓")
	if res.Failed > 0 || res.DispatchErr > 0 {
		mark = color.YellowString("△")
	}
	fmt.Fprintf(w, "%s cycle %s finished in %s\n", mark, res.ID, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  subscribers: %d  pairs: %d\n", res.Subscribers, res.Pairs)
	fmt.Fprintf(w, "  advanced: %d  failed: %s  skipped: %d\n",
		res.Advanced, countColor(res.Failed), res.Skipped)
	fmt.Fprintf(w, "  delivered: %d  filtered: %d  dispatch errors: %s\n",
		res.Delivered, res.Filtered, countColor(res.DispatchErr))
	return nil
}

// countColor highlights non-zero failure counts.
func countColor(n int) string {
	if n == 0 {
		return "0"
	}
	return color.RedString("%d", n)
}
