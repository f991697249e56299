// Package output renders subscriptions, subscriber status and poll cycle
// results for the terminal.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/poller"
	"github.com/spiffcs/repopulse/internal/subscription"
)

// Format represents the output format
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter defines the interface for output formatters
type Formatter interface {
	Subscriptions(subs []model.Subscription, w io.Writer) error
	Status(st subscription.Status, w io.Writer) error
	Cycle(res poller.CycleResult, w io.Writer) error
}

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatMarkdown:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("invalid format: %s (must be table, json or markdown)", s)
	}
}

// NewFormatter creates a formatter for the specified format
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Pretty: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// filterText renders one side of a filter, "-" when empty.
func filterText(labels []string) string {
	if len(labels) == 0 {
		return "-"
	}
	return strings.Join(labels, ", ")
}

func limitText(limit int) string {
	if limit <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", limit)
}
