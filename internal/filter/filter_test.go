package filter

import (
	"reflect"
	"testing"

	"github.com/spiffcs/repopulse/internal/model"
)

func item(labels ...string) model.Item {
	return model.Item{Type: model.ItemTypeIssue, Number: 1, Labels: labels}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name   string
		item   model.Item
		filter model.Filter
		want   bool
	}{
		{
			name: "no filter matches unlabeled",
			item: item(),
			want: true,
		},
		{
			name: "no filter matches labeled",
			item: item("bug"),
			want: true,
		},
		{
			name:   "include matches intersecting label",
			item:   item("bug", "ui"),
			filter: model.Filter{Include: []string{"bug"}},
			want:   true,
		},
		{
			name:   "include rejects disjoint labels",
			item:   item("docs"),
			filter: model.Filter{Include: []string{"bug"}},
			want:   false,
		},
		{
			name:   "include lets unlabeled items through",
			item:   item(),
			filter: model.Filter{Include: []string{"bug"}},
			want:   true,
		},
		{
			name:   "exclude lets unlabeled items through",
			item:   item(),
			filter: model.Filter{Exclude: []string{"bug"}},
			want:   true,
		},
		{
			name:   "exclude rejects intersecting label",
			item:   item("wontfix", "bug"),
			filter: model.Filter{Exclude: []string{"wontfix"}},
			want:   false,
		},
		{
			name:   "exclude wins over include",
			item:   item("bug", "wontfix"),
			filter: model.Filter{Include: []string{"bug"}, Exclude: []string{"wontfix"}},
			want:   false,
		},
		{
			name:   "same label in both sets is rejected",
			item:   item("bug"),
			filter: model.Filter{Include: []string{"bug"}, Exclude: []string{"bug"}},
			want:   false,
		},
		{
			name:   "case insensitive include",
			item:   item("Bug"),
			filter: model.Filter{Include: []string{"BUG"}},
			want:   true,
		},
		{
			name:   "case insensitive exclude with whitespace",
			item:   item(" WontFix "),
			filter: model.Filter{Exclude: []string{"wontfix"}},
			want:   false,
		},
		{
			name:   "exclude only passes other labels",
			item:   item("enhancement"),
			filter: model.Filter{Exclude: []string{"wontfix"}},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.item, tt.filter); got != tt.want {
				t.Errorf("Matches(%v, %+v) = %v, want %v", tt.item.Labels, tt.filter, got, tt.want)
			}
		})
	}
}

func TestMatchesPullRequest(t *testing.T) {
	pr := model.Item{Type: model.ItemTypePullRequest, Labels: []string{"dependencies"}}
	if Matches(pr, model.Filter{Exclude: []string{"dependencies"}}) {
		t.Error("Matches() = true for excluded pull request, want false")
	}
}

func TestNormalizeLabels(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"nil", nil, nil},
		{"trims and lowercases", []string{" Bug ", "UI"}, []string{"bug", "ui"}},
		{"drops empty", []string{"", "  ", "docs"}, []string{"docs"}},
		{"dedupes", []string{"bug", "BUG", "Bug "}, []string{"bug"}},
		{"all empty", []string{" "}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeLabels(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeLabels(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLabelList(t *testing.T) {
	got := ParseLabelList("bug, Good First Issue ,,ui")
	want := []string{"bug", "good first issue", "ui"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseLabelList() = %q, want %q", got, want)
	}
	if got := ParseLabelList("  "); got != nil {
		t.Errorf("ParseLabelList(blank) = %q, want nil", got)
	}
}
