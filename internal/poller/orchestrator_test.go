package poller

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/spiffcs/repopulse/internal/credential"
	"github.com/spiffcs/repopulse/internal/crypto"
	"github.com/spiffcs/repopulse/internal/ghclient"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/notify"
	"github.com/spiffcs/repopulse/internal/store"
	"github.com/spiffcs/repopulse/internal/store/sqlite"
	"github.com/spiffcs/repopulse/internal/subscription"
)

type fetchCall struct {
	repo  string
	token string
	since *time.Time
}

type fakeFetcher struct {
	mu        sync.Mutex
	issues    map[string][]model.Item
	pulls     map[string][]model.Item
	issuesErr map[string]error
	onFetch   func(repo string)
	calls     []fetchCall
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		issues:    map[string][]model.Item{},
		pulls:     map[string][]model.Item{},
		issuesErr: map[string]error{},
	}
}

func (f *fakeFetcher) FetchIssues(_ context.Context, repo, token string, since *time.Time) ([]model.Item, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{repo: repo, token: token, since: since})
	err := f.issuesErr[repo]
	items := f.issues[repo]
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(repo)
	}
	return items, err
}

func (f *fakeFetcher) FetchPullRequests(_ context.Context, repo, token string, since *time.Time) ([]model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{repo: repo, token: token, since: since})
	return f.pulls[repo], nil
}

func (f *fakeFetcher) callsFor(repo string) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fetchCall
	for _, c := range f.calls {
		if c.repo == repo {
			out = append(out, c)
		}
	}
	return out
}

type harness struct {
	db      *sqlite.DB
	subs    *subscription.Service
	clock   *clockwork.FakeClock
	fetcher *fakeFetcher
	sink    *notify.MemorySink
	t0      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "repopulse.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(t0)
	return &harness{
		db:      db,
		subs:    subscription.NewService(db, crypto.NoopService{}, subscription.WithClock(clock)),
		clock:   clock,
		fetcher: newFakeFetcher(),
		sink:    &notify.MemorySink{},
		t0:      t0,
	}
}

func (h *harness) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	resolver, err := credential.NewResolver(h.db, crypto.NoopService{}, "fallback-token")
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	opts = append([]Option{WithClock(h.clock), WithWorkers(2)}, opts...)
	return New(h.db, resolver, h.fetcher, h.sink, opts...)
}

func (h *harness) subscribe(t *testing.T, chatID int64, repo string, f model.Filter) model.Subscription {
	t.Helper()
	sub, err := h.subs.Subscribe(context.Background(), chatID, repo, f)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	return sub
}

func (h *harness) state(t *testing.T, sub model.Subscription) model.RepoCheckState {
	t.Helper()
	st, err := h.db.GetRepoState(context.Background(), sub.SubscriberID, sub.RepoID)
	if err != nil {
		t.Fatalf("GetRepoState() error: %v", err)
	}
	return st
}

func issue(repo string, number int, labels ...string) model.Item {
	return model.Item{
		Type:       model.ItemTypeIssue,
		Repository: repo,
		Number:     number,
		Title:      "issue",
		HTMLURL:    "https://github.com/" + repo + "/issues/" + strconv.Itoa(number),
		Labels:     labels,
		State:      "open",
	}
}

func TestRunCycleEndToEnd(t *testing.T) {
	h := newHarness(t)
	sub := h.subscribe(t, 1, "acme/widgets", model.Filter{Include: []string{"bug"}})

	h.fetcher.issues["acme/widgets"] = []model.Item{
		issue("acme/widgets", 1, "bug"),
		issue("acme/widgets", 2, "docs"),
	}

	h.clock.Advance(time.Minute)
	cycleTime := h.clock.Now()

	res := h.orchestrator(t).RunCycle(context.Background())
	if res.Err != nil {
		t.Fatalf("RunCycle() error: %v", res.Err)
	}
	if res.Delivered != 1 || res.Filtered != 1 || res.Advanced != 1 {
		t.Errorf("RunCycle() = %+v", res)
	}

	msgs := h.sink.Messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(msgs))
	}
	if msgs[0].ChatID != 1 || !strings.Contains(msgs[0].Text, "*Issue #1*") {
		t.Errorf("notification = %+v", msgs[0])
	}

	st := h.state(t, sub)
	if !st.LastIssueCheck.Equal(cycleTime) || !st.LastPullRequestCheck.Equal(cycleTime) {
		t.Errorf("watermarks = %v / %v, want %v", st.LastIssueCheck, st.LastPullRequestCheck, cycleTime)
	}

	calls := h.fetcher.callsFor("acme/widgets")
	if len(calls) != 2 {
		t.Fatalf("fetch calls = %d, want 2", len(calls))
	}
	for _, c := range calls {
		if c.since == nil || !c.since.Equal(h.t0) {
			t.Errorf("fetch since = %v, want %v", c.since, h.t0)
		}
		if c.token != "fallback-token" {
			t.Errorf("fetch token = %q, want fallback-token", c.token)
		}
	}
}

func TestRunCycleAdvancesWithoutItems(t *testing.T) {
	h := newHarness(t)
	sub := h.subscribe(t, 1, "acme/widgets", model.Filter{})

	h.clock.Advance(time.Minute)
	res := h.orchestrator(t).RunCycle(context.Background())
	if res.Advanced != 1 || res.Delivered != 0 {
		t.Errorf("RunCycle() = %+v", res)
	}
	if st := h.state(t, sub); !st.LastIssueCheck.Equal(h.clock.Now()) {
		t.Errorf("LastIssueCheck = %v, want %v", st.LastIssueCheck, h.clock.Now())
	}
}

func TestRunCycleFetchFailureKeepsWatermark(t *testing.T) {
	h := newHarness(t)
	broken := h.subscribe(t, 1, "acme/broken", model.Filter{})
	healthy := h.subscribe(t, 1, "acme/widgets", model.Filter{})

	h.fetcher.issuesErr["acme/broken"] = &ghclient.FetchError{Repo: "acme/broken", Status: http.StatusBadGateway, Err: errors.New("bad gateway")}
	h.fetcher.issues["acme/widgets"] = []model.Item{issue("acme/widgets", 1)}

	h.clock.Advance(time.Minute)
	res := h.orchestrator(t).RunCycle(context.Background())
	if res.Err != nil {
		t.Fatalf("RunCycle() error: %v", res.Err)
	}
	if res.Failed != 1 || res.Advanced != 1 || res.Delivered != 1 {
		t.Errorf("RunCycle() = %+v", res)
	}

	if st := h.state(t, broken); !st.LastIssueCheck.Equal(h.t0) || !st.LastPullRequestCheck.Equal(h.t0) {
		t.Errorf("failed pair watermarks = %v / %v, want unchanged %v", st.LastIssueCheck, st.LastPullRequestCheck, h.t0)
	}
	if st := h.state(t, healthy); !st.LastIssueCheck.Equal(h.clock.Now()) {
		t.Errorf("healthy pair LastIssueCheck = %v, want %v", st.LastIssueCheck, h.clock.Now())
	}
}

func TestRunCycleUsesSubscriberCredential(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, 1, "acme/public", model.Filter{})
	h.subscribe(t, 2, "acme/private", model.Filter{})
	if err := h.subs.CompleteConnect(context.Background(), 2, "user-token", "octocat"); err != nil {
		t.Fatalf("CompleteConnect() error: %v", err)
	}

	h.orchestrator(t).RunCycle(context.Background())

	if calls := h.fetcher.callsFor("acme/public"); len(calls) == 0 || calls[0].token != "fallback-token" {
		t.Errorf("unconnected subscriber calls = %+v", calls)
	}
	if calls := h.fetcher.callsFor("acme/private"); len(calls) == 0 || calls[0].token != "user-token" {
		t.Errorf("connected subscriber calls = %+v", calls)
	}
}

func TestRunCycleSkipsRemovedSubscription(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, 1, "acme/widgets", model.Filter{})
	h.fetcher.issues["acme/widgets"] = []model.Item{issue("acme/widgets", 1)}
	h.fetcher.onFetch = func(repo string) {
		if err := h.subs.Unsubscribe(context.Background(), 1, repo); err != nil {
			t.Errorf("Unsubscribe() error: %v", err)
		}
	}

	res := h.orchestrator(t).RunCycle(context.Background())
	if res.Skipped != 1 || res.Failed != 0 {
		t.Errorf("RunCycle() = %+v", res)
	}
	if len(h.sink.Messages()) != 0 {
		t.Error("removed subscription should not be notified")
	}
}

// unsubscribingSink removes the subscription while a notification is sent.
type unsubscribingSink struct {
	subs *subscription.Service
	repo string
	sent int
}

func (s *unsubscribingSink) Send(ctx context.Context, chatID int64, _ string) error {
	s.sent++
	return s.subs.Unsubscribe(ctx, chatID, s.repo)
}

func TestRunCycleUnsubscribeDuringDispatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sub := h.subscribe(t, 1, "acme/widgets", model.Filter{})
	h.fetcher.issues["acme/widgets"] = []model.Item{issue("acme/widgets", 1)}
	h.clock.Advance(time.Minute)

	sink := &unsubscribingSink{subs: h.subs, repo: "acme/widgets"}
	resolver, err := credential.NewResolver(h.db, crypto.NoopService{}, "fallback-token")
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	res := New(h.db, resolver, h.fetcher, sink, WithClock(h.clock)).RunCycle(ctx)

	if sink.sent != 1 {
		t.Fatalf("sent = %d, want 1", sink.sent)
	}
	if res.Skipped != 1 || res.Failed != 0 {
		t.Errorf("RunCycle() = %+v, want the pair skipped", res)
	}
	if _, err := h.db.GetRepoState(ctx, sub.SubscriberID, sub.RepoID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetRepoState() error = %v, want ErrNotFound after unsubscribe", err)
	}

	h.clock.Advance(24 * time.Hour)
	again := h.subscribe(t, 1, "acme/widgets", model.Filter{})
	st := h.state(t, again)
	if want := h.clock.Now(); !st.LastIssueCheck.Equal(want) || !st.LastPullRequestCheck.Equal(want) {
		t.Errorf("re-subscribed watermarks = %v / %v, want %v", st.LastIssueCheck, st.LastPullRequestCheck, want)
	}
}

func TestRunCycleDispatchErrorPolicy(t *testing.T) {
	tests := []struct {
		name        string
		advance     bool
		wantAdvance bool
	}{
		{name: "advance on dispatch error", advance: true, wantAdvance: true},
		{name: "hold watermark on dispatch error", advance: false, wantAdvance: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			sub := h.subscribe(t, 1, "acme/widgets", model.Filter{})
			h.fetcher.issues["acme/widgets"] = []model.Item{issue("acme/widgets", 1)}
			h.sink.Err = errors.New("chat unreachable")

			h.clock.Advance(time.Minute)
			res := h.orchestrator(t, WithAdvanceOnDispatchError(tt.advance)).RunCycle(context.Background())
			if res.DispatchErr != 1 {
				t.Errorf("DispatchErr = %d, want 1", res.DispatchErr)
			}

			st := h.state(t, sub)
			advanced := st.LastIssueCheck.Equal(h.clock.Now())
			if advanced != tt.wantAdvance {
				t.Errorf("watermark advanced = %v, want %v", advanced, tt.wantAdvance)
			}
		})
	}
}

type failingStore struct {
	*sqlite.DB
}

func (failingStore) ListSubscribers(context.Context) ([]model.Subscriber, error) {
	return nil, errors.New("connection refused")
}

func TestRunCycleListFailure(t *testing.T) {
	h := newHarness(t)
	resolver, _ := credential.NewResolver(h.db, crypto.NoopService{}, "fallback-token")
	o := New(failingStore{h.db}, resolver, h.fetcher, h.sink, WithClock(h.clock))

	res := o.RunCycle(context.Background())
	if res.Err == nil {
		t.Fatal("RunCycle() should report the listing failure")
	}
	if res.Pairs != 0 {
		t.Errorf("Pairs = %d, want 0", res.Pairs)
	}
}

func TestRunCycleCancelled(t *testing.T) {
	h := newHarness(t)
	sub := h.subscribe(t, 1, "acme/widgets", model.Filter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.clock.Advance(time.Minute)
	h.orchestrator(t).RunCycle(ctx)

	if st := h.state(t, sub); !st.LastIssueCheck.Equal(h.t0) {
		t.Errorf("LastIssueCheck = %v, want unchanged %v", st.LastIssueCheck, h.t0)
	}
}

func TestRunCycleRecordsID(t *testing.T) {
	h := newHarness(t)
	res := h.orchestrator(t).RunCycle(context.Background())
	if res.ID == "" {
		t.Error("cycle ID should be set")
	}
	if !res.StartedAt.Equal(h.t0) {
		t.Errorf("StartedAt = %v, want %v", res.StartedAt, h.t0)
	}
}
