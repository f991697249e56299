package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/spiffcs/repopulse/internal/format"
	"github.com/spiffcs/repopulse/internal/model"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		item model.Item
		want string
	}{
		{
			name: "labeled open issue",
			item: model.Item{
				Type:       model.ItemTypeIssue,
				Repository: "acme/widgets",
				Number:     12,
				Title:      "Crash on start",
				HTMLURL:    "https://github.com/acme/widgets/issues/12",
				Author:     "alice",
				Labels:     []string{"bug", "ui"},
				State:      "open",
				CreatedAt:  now.Add(-5 * time.Minute),
			},
			want: format.IssueIcon + " *Issue #12* " + format.OpenIcon + "\n" +
				format.RepoIcon + " acme/widgets\n\n" +
				"*Crash on start*\n" +
				format.LabelIcon + " `bug` `ui`\n\n" +
				format.AuthorIcon + " alice • " + format.AgeIcon + " 5m ago\n" +
				format.LinkIcon + " https://github.com/acme/widgets/issues/12",
		},
		{
			name: "unlabeled merged pull request without author",
			item: model.Item{
				Type:       model.ItemTypePullRequest,
				Repository: "acme/widgets",
				Number:     3,
				Title:      "Bump deps",
				HTMLURL:    "https://github.com/acme/widgets/pull/3",
				State:      "merged",
				CreatedAt:  now.Add(-3 * time.Hour),
			},
			want: format.PullRequestIcon + " *Pull Request #3* " + format.MergedIcon + "\n" +
				format.RepoIcon + " acme/widgets\n\n" +
				"*Bump deps*\n\n" +
				format.AuthorIcon + " Unknown • " + format.AgeIcon + " 3h ago\n" +
				format.LinkIcon + " https://github.com/acme/widgets/pull/3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(tt.item, now, 80)
			if got != tt.want {
				t.Errorf("Format() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestFormatEscapesMarkdown(t *testing.T) {
	item := model.Item{
		Type:       model.ItemTypeIssue,
		Repository: "acme/widgets",
		Number:     1,
		Title:      "snake_case *breaks*",
		Author:     "some_user",
		CreatedAt:  now,
	}
	got := Format(item, now, 0)
	if !strings.Contains(got, `*snake\_case \*breaks\**`) {
		t.Errorf("title not escaped:\n%s", got)
	}
	if !strings.Contains(got, `some\_user`) {
		t.Errorf("author not escaped:\n%s", got)
	}
	if !strings.Contains(got, "just now") {
		t.Errorf("age missing:\n%s", got)
	}
}

func TestFormatTruncatesTitle(t *testing.T) {
	item := model.Item{
		Type:      model.ItemTypeIssue,
		Number:    1,
		Title:     strings.Repeat("a", 50),
		CreatedAt: now,
	}
	got := Format(item, now, 10)
	if !strings.Contains(got, "*aaaaaaa...*") {
		t.Errorf("title not truncated:\n%s", got)
	}
}

func TestLabelLine(t *testing.T) {
	tests := []struct {
		labels []string
		want   string
	}{
		{nil, ""},
		{[]string{" "}, ""},
		{[]string{"bug"}, "`bug`"},
		{[]string{"a`b", "c"}, "`ab` `c`"},
	}
	for _, tt := range tests {
		if got := labelLine(tt.labels); got != tt.want {
			t.Errorf("labelLine(%q) = %q, want %q", tt.labels, got, tt.want)
		}
	}
}

func TestFormatEscapesRepositoryURL(t *testing.T) {
	item := model.Item{
		Type:       model.ItemTypePullRequest,
		Repository: "acme/my_repo",
		Number:     7,
		Title:      "Fix",
		HTMLURL:    "https://github.com/acme/my_repo/pull/7",
		Author:     "alice",
		CreatedAt:  now,
	}
	got := Format(item, now, 0)

	if !strings.Contains(got, format.RepoIcon+` acme/my\_repo`) {
		t.Errorf("repository not escaped:\n%s", got)
	}
	if !strings.HasSuffix(got, format.LinkIcon+` https://github.com/acme/my\_repo/pull/7`) {
		t.Errorf("link not escaped:\n%s", got)
	}
	if strings.Count(got, "_") != strings.Count(got, `\_`) {
		t.Errorf("unescaped underscore left in message:\n%s", got)
	}
}
