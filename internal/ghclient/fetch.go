package ghclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"

	"github.com/spiffcs/repopulse/internal/constants"
	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/urlutil"
)

// FetchIssues lists issues of repo changed since the watermark. GitHub's
// since parameter filters on update time, so an old issue that was edited
// shows up again; the pull request path filters on creation time instead.
// Pull requests returned by the issues endpoint are dropped.
func (c *Client) FetchIssues(ctx context.Context, repo string, since *time.Time) ([]model.Item, error) {
	owner, name, err := urlutil.SplitFullName(repo)
	if err != nil {
		return nil, &FetchError{Repo: repo, Err: err}
	}

	opts := &gh.IssueListByRepoOptions{
		State: "all",
		ListOptions: gh.ListOptions{
			PerPage: c.pageSize,
		},
	}
	if since != nil {
		opts.Since = *since
	}

	var items []model.Item
	for {
		page, resp, err := c.client.Issues.ListByRepo(ctx, owner, name, opts)
		if err != nil {
			return nil, newFetchError(repo, resp, err)
		}

		for _, issue := range page {
			if issue.IsPullRequest() {
				continue
			}
			items = append(items, IssueItem(repo, issue))
		}

		if len(page) < c.pageSize || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	log.Trace("fetched issues", "repo", repo, "count", len(items))
	return items, nil
}

// FetchPullRequests lists pull requests of repo created strictly after the
// watermark. The pulls endpoint has no since filter, so pages are read
// newest-first and paging stops at the first page that reaches the
// watermark.
func (c *Client) FetchPullRequests(ctx context.Context, repo string, since *time.Time) ([]model.Item, error) {
	owner, name, err := urlutil.SplitFullName(repo)
	if err != nil {
		return nil, &FetchError{Repo: repo, Err: err}
	}

	opts := &gh.PullRequestListOptions{
		State:     "all",
		Sort:      "created",
		Direction: "desc",
		ListOptions: gh.ListOptions{
			PerPage: c.pageSize,
		},
	}

	var items []model.Item
	for {
		page, resp, err := c.client.PullRequests.List(ctx, owner, name, opts)
		if err != nil {
			return nil, newFetchError(repo, resp, err)
		}

		reachedWatermark := false
		for _, pr := range page {
			if since != nil && !pr.GetCreatedAt().Time.After(*since) {
				reachedWatermark = true
				continue
			}
			items = append(items, PullRequestItem(repo, pr))
		}

		if reachedWatermark || len(page) < c.pageSize || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	log.Trace("fetched pull requests", "repo", repo, "count", len(items))
	return items, nil
}

// ListLabels returns the label names defined on repo.
func (c *Client) ListLabels(ctx context.Context, repo string) ([]string, error) {
	owner, name, err := urlutil.SplitFullName(repo)
	if err != nil {
		return nil, &FetchError{Repo: repo, Err: err}
	}

	opts := &gh.ListOptions{PerPage: c.pageSize}

	var names []string
	for {
		page, resp, err := c.client.Issues.ListLabels(ctx, owner, name, opts)
		if err != nil {
			return nil, newFetchError(repo, resp, err)
		}
		for _, l := range page {
			names = append(names, l.GetName())
		}
		if len(page) < c.pageSize || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}

// IssueItem converts a GitHub issue of repo to a model.Item.
func IssueItem(repo string, issue *gh.Issue) model.Item {
	var labels []string
	for _, label := range issue.Labels {
		labels = append(labels, label.GetName())
	}

	return model.Item{
		Type:       model.ItemTypeIssue,
		Repository: repo,
		Number:     issue.GetNumber(),
		Title:      issue.GetTitle(),
		HTMLURL:    htmlURL(issue.GetHTMLURL(), repo, "issues", issue.GetNumber()),
		Author:     issue.GetUser().GetLogin(),
		Labels:     labels,
		State:      strings.ToLower(issue.GetState()),
		CreatedAt:  issue.GetCreatedAt().Time,
		UpdatedAt:  issue.GetUpdatedAt().Time,
	}
}

// PullRequestItem converts a GitHub pull request of repo to a model.Item.
// Merged pull requests report the merged state.
func PullRequestItem(repo string, pr *gh.PullRequest) model.Item {
	var labels []string
	for _, label := range pr.Labels {
		labels = append(labels, label.GetName())
	}

	state := strings.ToLower(pr.GetState())
	if pr.MergedAt != nil {
		state = constants.StateMerged
	}

	return model.Item{
		Type:       model.ItemTypePullRequest,
		Repository: repo,
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		HTMLURL:    htmlURL(pr.GetHTMLURL(), repo, "pull", pr.GetNumber()),
		Author:     pr.GetUser().GetLogin(),
		Labels:     labels,
		State:      state,
		CreatedAt:  pr.GetCreatedAt().Time,
		UpdatedAt:  pr.GetUpdatedAt().Time,
	}
}

func htmlURL(u, repo, kind string, number int) string {
	if u != "" {
		return u
	}
	return fmt.Sprintf("https://github.com/%s/%s/%d", repo, kind, number)
}
