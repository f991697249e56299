// Package format provides shared text formatting utilities for terminal
// output and chat notifications.
package format

import (
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
)

// ansiRegex matches ANSI escape sequences
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Ellipsis is appended to truncated text.
const Ellipsis = "..."

// StripAnsi removes ANSI escape sequences from a string.
func StripAnsi(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// DisplayWidth returns the visible width of a string in terminal columns,
// ignoring ANSI escape sequences.
func DisplayWidth(s string) int {
	return runewidth.StringWidth(StripAnsi(s))
}

// Truncate shortens plain text to at most maxWidth display columns,
// appending an ellipsis when anything was cut. A non-positive maxWidth
// disables truncation.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 0 || runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= len(Ellipsis) {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, Ellipsis)
}

// SingleLine collapses all whitespace runs, including newlines, into single spaces.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// PadRight pads a string with spaces to reach the target visible width.
func PadRight(s string, targetWidth int) string {
	w := DisplayWidth(s)
	if w >= targetWidth {
		return s
	}
	return s + strings.Repeat(" ", targetWidth-w)
}
