// Package subscription implements the commands a subscriber issues: tracking
// repositories, editing filters and linking a GitHub account.
package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/spiffcs/repopulse/internal/crypto"
	"github.com/spiffcs/repopulse/internal/filter"
	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/notify"
	"github.com/spiffcs/repopulse/internal/session"
	"github.com/spiffcs/repopulse/internal/store"
	"github.com/spiffcs/repopulse/internal/tracker"
	"github.com/spiffcs/repopulse/internal/urlutil"
)

var (
	// ErrRepoLimit is returned when an unconnected subscriber already tracks
	// as many repositories as allowed.
	ErrRepoLimit = errors.New("repository limit reached")

	// ErrNotSubscribed is returned for operations on a repository the
	// subscriber does not track.
	ErrNotSubscribed = errors.New("not subscribed to repository")

	// ErrAlreadyConnected is returned by BeginConnect for a connected subscriber.
	ErrAlreadyConnected = errors.New("already connected to GitHub")

	// ErrNotConnected is returned by Disconnect for an unconnected subscriber.
	ErrNotConnected = errors.New("not connected to GitHub")

	// ErrOAuthDisabled is returned when no OAuth application is configured.
	ErrOAuthDisabled = errors.New("GitHub OAuth is not configured")
)

// Status summarizes a subscriber.
type Status struct {
	ChatID         int64  `json:"chatId"`
	Exists         bool   `json:"exists"`
	Connected      bool   `json:"connected"`
	GitHubUsername string `json:"githubUsername,omitempty"`
	RepoCount      int    `json:"repoCount"`
	// RepoLimit is 0 when unbounded.
	RepoLimit int `json:"repoLimit"`
}

// Service implements subscriber commands on top of the store.
type Service struct {
	store   store.Store
	tracker *tracker.Tracker
	crypto  crypto.Service
	states  *session.OAuthStates
	oauth   *oauth2.Config
	sink    notify.Sink
	clock   clockwork.Clock
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for initial watermarks.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithOAuth enables the connect flow.
func WithOAuth(cfg *oauth2.Config, states *session.OAuthStates) Option {
	return func(s *Service) {
		s.oauth = cfg
		s.states = states
	}
}

// WithSink sets where connect confirmations are sent.
func WithSink(sink notify.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// NewService creates a Service.
func NewService(st store.Store, svc crypto.Service, opts ...Option) *Service {
	s := &Service{
		store:   st,
		tracker: tracker.New(st),
		crypto:  svc,
		sink:    notify.LogSink{},
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe starts tracking input for chatID with the given filter. Calling
// it again for the same repository replaces the filter and leaves the
// watermarks alone.
func (s *Service) Subscribe(ctx context.Context, chatID int64, input string, f model.Filter) (model.Subscription, error) {
	fullName, err := urlutil.ParseRepoFullName(input)
	if err != nil {
		return model.Subscription{}, err
	}

	sub, err := s.store.UpsertSubscriber(ctx, chatID)
	if err != nil {
		return model.Subscription{}, fmt.Errorf("failed to register subscriber: %w", err)
	}

	_, err = s.store.GetSubscription(ctx, sub.ID, fullName)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := s.checkLimit(ctx, sub); err != nil {
			return model.Subscription{}, err
		}
	case err != nil:
		return model.Subscription{}, fmt.Errorf("failed to load subscription: %w", err)
	}

	repo, err := s.store.UpsertRepository(ctx, fullName)
	if err != nil {
		return model.Subscription{}, fmt.Errorf("failed to register repository: %w", err)
	}

	saved, err := s.store.SaveSubscription(ctx, sub.ID, repo.ID, filter.Normalize(f))
	if err != nil {
		return model.Subscription{}, fmt.Errorf("failed to save subscription: %w", err)
	}

	now := s.clock.Now()
	if err := s.tracker.SetInitial(ctx, sub.ID, repo.ID, now, now); err != nil {
		return model.Subscription{}, err
	}

	log.InfoContext(ctx, "subscribed", "chat_id", chatID, "repo", fullName)
	return saved, nil
}

func (s *Service) checkLimit(ctx context.Context, sub model.Subscriber) error {
	if sub.Unlimited() {
		return nil
	}
	n, err := s.store.CountSubscriptions(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to count subscriptions: %w", err)
	}
	if n >= sub.RepoLimit {
		return fmt.Errorf("%w: %d of %d", ErrRepoLimit, n, sub.RepoLimit)
	}
	return nil
}

// Unsubscribe stops tracking input and discards its watermarks.
func (s *Service) Unsubscribe(ctx context.Context, chatID int64, input string) error {
	existing, err := s.lookup(ctx, chatID, input)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSubscription(ctx, existing.SubscriberID, existing.RepoID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotSubscribed
		}
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	log.InfoContext(ctx, "unsubscribed", "chat_id", chatID, "repo", existing.RepoFullName)
	return nil
}

// SetFilter replaces the filter of an existing subscription.
func (s *Service) SetFilter(ctx context.Context, chatID int64, input string, f model.Filter) (model.Subscription, error) {
	existing, err := s.lookup(ctx, chatID, input)
	if err != nil {
		return model.Subscription{}, err
	}
	saved, err := s.store.SaveSubscription(ctx, existing.SubscriberID, existing.RepoID, filter.Normalize(f))
	if err != nil {
		return model.Subscription{}, fmt.Errorf("failed to save filter: %w", err)
	}
	return saved, nil
}

// Get returns one subscription.
func (s *Service) Get(ctx context.Context, chatID int64, input string) (model.Subscription, error) {
	return s.lookup(ctx, chatID, input)
}

func (s *Service) lookup(ctx context.Context, chatID int64, input string) (model.Subscription, error) {
	fullName, err := urlutil.ParseRepoFullName(input)
	if err != nil {
		return model.Subscription{}, err
	}
	sub, err := s.store.GetSubscriber(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Subscription{}, ErrNotSubscribed
	}
	if err != nil {
		return model.Subscription{}, fmt.Errorf("failed to load subscriber: %w", err)
	}
	existing, err := s.store.GetSubscription(ctx, sub.ID, fullName)
	if errors.Is(err, store.ErrNotFound) {
		return model.Subscription{}, ErrNotSubscribed
	}
	if err != nil {
		return model.Subscription{}, fmt.Errorf("failed to load subscription: %w", err)
	}
	return existing, nil
}

// List returns the subscriptions of chatID, ordered by repository.
func (s *Service) List(ctx context.Context, chatID int64) ([]model.Subscription, error) {
	sub, err := s.store.GetSubscriber(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriber: %w", err)
	}
	subs, err := s.store.ListSubscriptions(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// Status reports whether chatID is known and connected and how many
// repositories it tracks.
func (s *Service) Status(ctx context.Context, chatID int64) (Status, error) {
	st := Status{ChatID: chatID}
	sub, err := s.store.GetSubscriber(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to load subscriber: %w", err)
	}

	n, err := s.store.CountSubscriptions(ctx, sub.ID)
	if err != nil {
		return st, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	st.Exists = true
	st.Connected = sub.Connected
	st.GitHubUsername = sub.GitHubUsername
	st.RepoCount = n
	st.RepoLimit = sub.RepoLimit
	return st, nil
}
