// Package tracker records how far each (subscriber, repository) pair has
// been checked. It is a thin durable map; callers are responsible for only
// moving watermarks forward.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/store"
)

// Tracker reads and writes repo-check state.
type Tracker struct {
	states store.StateStore
}

// New creates a Tracker backed by states.
func New(states store.StateStore) *Tracker {
	return &Tracker{states: states}
}

// Get returns the state for a pair. The boolean is false when no state exists.
func (t *Tracker) Get(ctx context.Context, subscriberID, repoID int64) (model.RepoCheckState, bool, error) {
	st, err := t.states.GetRepoState(ctx, subscriberID, repoID)
	if errors.Is(err, store.ErrNotFound) {
		return model.RepoCheckState{SubscriberID: subscriberID, RepoID: repoID}, false, nil
	}
	if err != nil {
		return st, false, fmt.Errorf("failed to load watermarks: %w", err)
	}
	return st, true, nil
}

// SetInitial creates the state if absent. Repeated calls leave an existing
// state untouched, so re-subscribing never replays or skips history.
func (t *Tracker) SetInitial(ctx context.Context, subscriberID, repoID int64, issueCheck, prCheck time.Time) error {
	if err := t.states.InitRepoState(ctx, subscriberID, repoID, issueCheck, prCheck); err != nil {
		return fmt.Errorf("failed to initialize watermarks: %w", err)
	}
	return nil
}

// Advance overwrites both watermarks. The error wraps store.ErrNotFound
// when the subscription was removed.
func (t *Tracker) Advance(ctx context.Context, subscriberID, repoID int64, issueCheck, prCheck time.Time) error {
	if err := t.states.AdvanceRepoState(ctx, subscriberID, repoID, issueCheck, prCheck); err != nil {
		return fmt.Errorf("failed to advance watermarks: %w", err)
	}
	log.DebugContext(ctx, "watermarks advanced",
		"subscriber_id", subscriberID, "repo_id", repoID,
		"issues", issueCheck.Format(time.RFC3339), "pull_requests", prCheck.Format(time.RFC3339))
	return nil
}

// Since converts a state into fetch bounds. A missing state or a zero
// watermark means "no bound".
func Since(st model.RepoCheckState, found bool) (issues, pullRequests *time.Time) {
	if !found {
		return nil, nil
	}
	if !st.LastIssueCheck.IsZero() {
		ts := st.LastIssueCheck
		issues = &ts
	}
	if !st.LastPullRequestCheck.IsZero() {
		ts := st.LastPullRequestCheck
		pullRequests = &ts
	}
	return issues, pullRequests
}
