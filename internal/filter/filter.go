// Package filter decides whether an item should be delivered to a subscription.
package filter

import (
	"strings"

	"github.com/spiffcs/repopulse/internal/model"
)

// Matches reports whether item passes filter.
//
// Exclusion is evaluated first and always wins. When an include set is
// configured, unlabeled items are still accepted because they may be
// labeled later; labeled items need at least one included label.
// Label comparison is case-insensitive.
func Matches(item model.Item, f model.Filter) bool {
	labels := labelSet(item.Labels)

	if len(f.Exclude) > 0 && intersects(labels, f.Exclude) {
		return false
	}

	if len(f.Include) > 0 && len(labels) > 0 {
		return intersects(labels, f.Include)
	}

	return true
}

// NormalizeLabels trims and lowercases labels, dropping empty entries and
// duplicates while preserving first-seen order.
func NormalizeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		n := normalize(l)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Normalize returns a copy of f with both label sets normalized.
func Normalize(f model.Filter) model.Filter {
	return model.Filter{
		Include: NormalizeLabels(f.Include),
		Exclude: NormalizeLabels(f.Exclude),
	}
}

// ParseLabelList splits a comma separated list of labels.
func ParseLabelList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return NormalizeLabels(strings.Split(s, ","))
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

func labelSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if n := normalize(l); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func intersects(set map[string]struct{}, labels []string) bool {
	for _, l := range labels {
		if _, ok := set[normalize(l)]; ok {
			return true
		}
	}
	return false
}
