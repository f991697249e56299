// Package poller drives poll cycles: for every (subscriber, repository) pair
// it fetches new items since the stored watermarks, delivers the ones the
// subscription's filter accepts and then advances the watermarks.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/spiffcs/repopulse/internal/constants"
	"github.com/spiffcs/repopulse/internal/credential"
	"github.com/spiffcs/repopulse/internal/filter"
	"github.com/spiffcs/repopulse/internal/ghclient"
	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/metrics"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/notify"
	"github.com/spiffcs/repopulse/internal/store"
	"github.com/spiffcs/repopulse/internal/tracker"
)

// Store is the subset of the record store a cycle reads and writes.
type Store interface {
	store.SubscriberStore
	store.RepositoryStore
	store.SubscriptionStore
	store.StateStore
}

// CredentialResolver picks the token for a subscriber.
type CredentialResolver interface {
	Resolve(ctx context.Context, chatID int64) credential.Credential
}

// Ensure the concrete resolver satisfies CredentialResolver.
var _ CredentialResolver = (*credential.Resolver)(nil)

// errDispatch marks a pair whose watermark is held back because a delivery failed.
var errDispatch = errors.New("notification dispatch failed")

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	ID          string
	StartedAt   time.Time
	Duration    time.Duration
	Subscribers int
	Pairs       int
	Advanced    int
	Failed      int
	Skipped     int
	Delivered   int
	Filtered    int
	DispatchErr int
	// Err is set only when the cycle could not start (listing subscribers failed).
	Err error
}

func (r *CycleResult) add(p pairResult) {
	r.Pairs++
	switch p.outcome {
	case outcomeAdvanced:
		r.Advanced++
	case outcomeFailed:
		r.Failed++
	case outcomeSkipped:
		r.Skipped++
	}
	r.Delivered += p.delivered
	r.Filtered += p.filtered
	r.DispatchErr += p.dispatchErr
}

type outcome string

const (
	outcomeAdvanced outcome = "advanced"
	outcomeFailed   outcome = "failed"
	outcomeSkipped  outcome = "skipped"
)

type pairResult struct {
	outcome     outcome
	delivered   int
	filtered    int
	dispatchErr int
}

type pair struct {
	chatID       int64
	subscriberID int64
	repo         string
}

// Orchestrator runs poll cycles.
type Orchestrator struct {
	store    Store
	tracker  *tracker.Tracker
	resolver CredentialResolver
	fetcher  ghclient.Fetcher
	sink     notify.Sink
	clock    clockwork.Clock

	workers                int
	maxTitleWidth          int
	advanceOnDispatchError bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock that stamps cycles.
func WithClock(c clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithWorkers bounds how many pairs are processed at once.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMaxTitleWidth sets the title width of rendered notifications.
func WithMaxTitleWidth(n int) Option {
	return func(o *Orchestrator) { o.maxTitleWidth = n }
}

// WithAdvanceOnDispatchError controls whether a pair's watermarks advance
// when some of its notifications could not be delivered. When false the
// whole window is fetched again next cycle.
func WithAdvanceOnDispatchError(advance bool) Option {
	return func(o *Orchestrator) { o.advanceOnDispatchError = advance }
}

// New creates an Orchestrator.
func New(st Store, resolver CredentialResolver, fetcher ghclient.Fetcher, sink notify.Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:                  st,
		tracker:                tracker.New(st),
		resolver:               resolver,
		fetcher:                fetcher,
		sink:                   sink,
		clock:                  clockwork.NewRealClock(),
		workers:                constants.DefaultPollWorkers,
		maxTitleWidth:          constants.DefaultMaxTitleWidth,
		advanceOnDispatchError: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunCycle polls every subscription once. It never fails as a whole: errors
// are confined to the pair they occur in, which keeps its old watermarks.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleResult {
	result := CycleResult{ID: log.NewID(), StartedAt: o.clock.Now()}
	ctx = log.WithCycleID(ctx, result.ID)
	now := result.StartedAt

	defer func() {
		result.Duration = o.clock.Since(now)
		metrics.PollCycleDuration.Observe(result.Duration.Seconds())
	}()

	subscribers, err := o.store.ListSubscribers(ctx)
	if err != nil {
		result.Err = fmt.Errorf("failed to list subscribers: %w", err)
		log.ErrorContext(ctx, "poll cycle aborted", "error", result.Err)
		metrics.PollCyclesTotal.WithLabelValues("error").Inc()
		return result
	}
	result.Subscribers = len(subscribers)
	log.DebugContext(ctx, "poll cycle started", "subscribers", len(subscribers))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.workers)

	for _, listed := range subscribers {
		if ctx.Err() != nil {
			break
		}

		pairs, ok := o.pairsFor(ctx, listed.ChatID)
		if !ok {
			continue
		}
		for _, p := range pairs {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				res := o.processPair(ctx, p, now)
				metrics.PollPairsTotal.WithLabelValues(string(res.outcome)).Inc()
				mu.Lock()
				result.add(res)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	metrics.PollCyclesTotal.WithLabelValues("ok").Inc()
	log.InfoContext(ctx, "poll cycle finished",
		"subscribers", result.Subscribers,
		"pairs", result.Pairs,
		"advanced", result.Advanced,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"delivered", result.Delivered)
	return result
}

// pairsFor resolves the subscriber again and lists its repositories. A
// subscriber that vanished since the listing is skipped.
func (o *Orchestrator) pairsFor(ctx context.Context, chatID int64) ([]pair, bool) {
	sub, err := o.store.GetSubscriber(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		log.DebugContext(ctx, "subscriber not found, skipping", "chat_id", chatID)
		return nil, false
	}
	if err != nil {
		log.WarnContext(ctx, "failed to load subscriber, skipping", "chat_id", chatID, "error", err)
		return nil, false
	}

	subs, err := o.store.ListSubscriptions(ctx, sub.ID)
	if err != nil {
		log.WarnContext(ctx, "failed to list subscriptions, skipping", "chat_id", chatID, "error", err)
		return nil, false
	}

	pairs := make([]pair, 0, len(subs))
	for _, s := range subs {
		pairs = append(pairs, pair{chatID: chatID, subscriberID: sub.ID, repo: s.RepoFullName})
	}
	return pairs, true
}

func (o *Orchestrator) processPair(ctx context.Context, p pair, now time.Time) pairResult {
	res, err := o.pollPair(ctx, p, now)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.DebugContext(ctx, "subscription removed during cycle, skipping", "chat_id", p.chatID, "repo", p.repo)
		res.outcome = outcomeSkipped
	case err != nil:
		log.WarnContext(ctx, "failed to poll repository",
			"chat_id", p.chatID,
			"repo", p.repo,
			"status", ghclient.StatusOf(err),
			"error", err)
		res.outcome = outcomeFailed
	default:
		res.outcome = outcomeAdvanced
	}
	return res
}

// pollPair performs one pair's fetch, deliver and advance. The watermark
// write is the last step, so any earlier failure leaves the window to be
// fetched again.
func (o *Orchestrator) pollPair(ctx context.Context, p pair, now time.Time) (pairResult, error) {
	var res pairResult

	repo, err := o.store.UpsertRepository(ctx, p.repo)
	if err != nil {
		return res, fmt.Errorf("failed to upsert repository: %w", err)
	}

	state, found, err := o.tracker.Get(ctx, p.subscriberID, repo.ID)
	if err != nil {
		return res, err
	}
	issuesSince, pullsSince := tracker.Since(state, found)

	cred := o.resolver.Resolve(ctx, p.chatID)
	log.DebugContext(ctx, "polling repository", "chat_id", p.chatID, "repo", p.repo, "credential", cred.Source)

	issues, err := o.fetcher.FetchIssues(ctx, p.repo, cred.Token, issuesSince)
	if err != nil {
		return res, err
	}
	pulls, err := o.fetcher.FetchPullRequests(ctx, p.repo, cred.Token, pullsSince)
	if err != nil {
		return res, err
	}

	sub, err := o.store.GetSubscription(ctx, p.subscriberID, p.repo)
	if err != nil {
		return res, err
	}

	items := make([]model.Item, 0, len(issues)+len(pulls))
	items = append(items, issues...)
	items = append(items, pulls...)

	for _, item := range items {
		if !filter.Matches(item, sub.Filter) {
			res.filtered++
			metrics.NotificationsTotal.WithLabelValues("filtered").Inc()
			continue
		}
		if err := o.sink.Send(ctx, p.chatID, notify.Format(item, now, o.maxTitleWidth)); err != nil {
			res.dispatchErr++
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			log.WarnContext(ctx, "failed to send notification", "chat_id", p.chatID, "item", item.Key(), "error", err)
			continue
		}
		res.delivered++
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}

	if res.dispatchErr > 0 && !o.advanceOnDispatchError {
		return res, fmt.Errorf("%w: %d of %d notifications", errDispatch, res.dispatchErr, res.dispatchErr+res.delivered)
	}

	if err := o.tracker.Advance(ctx, p.subscriberID, repo.ID, now, now); err != nil {
		return res, err
	}
	return res, nil
}
