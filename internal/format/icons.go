package format

import (
	"github.com/spiffcs/repopulse/internal/constants"
	"github.com/spiffcs/repopulse/internal/model"
)

// Icon strings used in chat notifications.
const (
	// IssueIcon is the bug emoji shown for issues.
	IssueIcon = "\U0001F41B" // 🐛

	// PullRequestIcon is the twisted arrows emoji shown for pull requests.
	PullRequestIcon = "\U0001F500" // 🔀

	// OpenIcon marks an open item.
	OpenIcon = "\U0001F7E2" // 🟢

	// ClosedIcon marks a closed item.
	ClosedIcon = "\U0001F534" // 🔴

	// MergedIcon marks a merged pull request.
	MergedIcon = "\U0001F7E3" // 🟣

	// RepoIcon prefixes the repository line.
	RepoIcon = "\U0001F4E6" // 📦

	// LabelIcon prefixes the label line.
	// U+1F3F7 + U+FE0F forces emoji presentation.
	LabelIcon = "\U0001F3F7\uFE0F" // 🏷️

	// AuthorIcon prefixes the author.
	AuthorIcon = "\U0001F464" // 👤

	// AgeIcon prefixes the relative age.
	AgeIcon = "\u23F0" // ⏰

	// LinkIcon prefixes the item URL.
	LinkIcon = "\U0001F517" // 🔗
)

// TypeIcon returns the icon for an item type.
func TypeIcon(t model.ItemType) string {
	if t == model.ItemTypePullRequest {
		return PullRequestIcon
	}
	return IssueIcon
}

// StateIcon returns the icon for an item state, or "" for unknown states.
func StateIcon(state string) string {
	switch state {
	case constants.StateOpen:
		return OpenIcon
	case constants.StateClosed:
		return ClosedIcon
	case constants.StateMerged:
		return MergedIcon
	default:
		return ""
	}
}
