// Package urlutil provides GitHub URL and repository name parsing utilities.
package urlutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidRepo is returned when input cannot be turned into owner/name.
var ErrInvalidRepo = errors.New("invalid repository")

// namePart matches a single GitHub owner or repository name segment.
var namePart = regexp.MustCompile(`^[a-z0-9_.-]+$`)

var repoPrefixes = []string{
	"https://github.com/",
	"http://github.com/",
	"github.com/",
}

// ParseRepoFullName normalizes user input into a lowercase "owner/name".
// Accepted forms include "owner/name", "https://github.com/owner/name",
// and clone URLs ending in ".git" or a trailing slash.
func ParseRepoFullName(input string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	for _, prefix := range repoPrefixes {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%w %q: expected owner/name", ErrInvalidRepo, input)
	}
	for _, p := range parts {
		if !namePart.MatchString(p) {
			return "", fmt.Errorf("%w %q: unexpected characters in %q", ErrInvalidRepo, input, p)
		}
	}

	return parts[0] + "/" + parts[1], nil
}

// SplitFullName splits "owner/name" into its two parts.
func SplitFullName(fullName string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("%w %q: expected owner/name", ErrInvalidRepo, fullName)
	}
	return owner, repo, nil
}
