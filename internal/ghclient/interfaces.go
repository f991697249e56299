// Package ghclient provides GitHub API client functionality.
package ghclient

import (
	"context"
	"time"

	"github.com/spiffcs/repopulse/internal/model"
)

// Fetcher retrieves repository items with a given credential.
type Fetcher interface {
	FetchIssues(ctx context.Context, repo, token string, since *time.Time) ([]model.Item, error)
	FetchPullRequests(ctx context.Context, repo, token string, since *time.Time) ([]model.Item, error)
}

// LabelLister lists the labels defined on a repository.
type LabelLister interface {
	ListLabels(ctx context.Context, repo, token string) ([]string, error)
}

// Ensure Pool implements Fetcher and LabelLister.
var (
	_ Fetcher     = (*Pool)(nil)
	_ LabelLister = (*Pool)(nil)
)
