package format

import (
	"fmt"
	"time"
)

// RelativeAge formats the time elapsed since t for chat notifications:
// "just now", "5m ago", "3h ago", "2d ago". Days are never rolled up into
// weeks or months. Timestamps in the future render as "just now".
func RelativeAge(t, now time.Time) string {
	minutes := int(now.Sub(t).Minutes())
	switch {
	case minutes < 1:
		return "just now"
	case minutes < 60:
		return fmt.Sprintf("%dm ago", minutes)
	case minutes < 24*60:
		return fmt.Sprintf("%dh ago", minutes/60)
	default:
		return fmt.Sprintf("%dd ago", minutes/(24*60))
	}
}
