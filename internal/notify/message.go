// Package notify renders items into chat messages and delivers them.
package notify

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/spiffcs/repopulse/internal/constants"
	"github.com/spiffcs/repopulse/internal/format"
	"github.com/spiffcs/repopulse/internal/model"
)

// Format renders item as a Markdown chat message. Ages are relative to now
// and titles are cut to maxTitleWidth display columns (0 disables it).
func Format(item model.Item, now time.Time, maxTitleWidth int) string {
	var b strings.Builder

	header := fmt.Sprintf("%s *%s #%d*", format.TypeIcon(item.Type), item.Type.DisplayName(), item.Number)
	if icon := format.StateIcon(item.State); icon != "" {
		header += " " + icon
	}
	b.WriteString(header)
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n\n", format.RepoIcon, EscapeMarkdown(item.Repository))

	title := format.Truncate(format.SingleLine(item.Title), maxTitleWidth)
	fmt.Fprintf(&b, "*%s*\n", EscapeMarkdown(title))

	if labels := labelLine(item.Labels); labels != "" {
		fmt.Fprintf(&b, "%s %s\n", format.LabelIcon, labels)
	}
	b.WriteString("\n")

	author := item.Author
	if author == "" {
		author = constants.UnknownAuthor
	}
	fmt.Fprintf(&b, "%s %s • %s %s\n", format.AuthorIcon, EscapeMarkdown(author), format.AgeIcon, format.RelativeAge(item.CreatedAt, now))
	fmt.Fprintf(&b, "%s %s", format.LinkIcon, EscapeMarkdown(item.HTMLURL))

	return b.String()
}

func labelLine(labels []string) string {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.ReplaceAll(strings.TrimSpace(l), "`", "")
		if l == "" {
			continue
		}
		parts = append(parts, "`"+l+"`")
	}
	return strings.Join(parts, " ")
}

// EscapeMarkdown escapes user-controlled text for Telegram Markdown.
func EscapeMarkdown(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
