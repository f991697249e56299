// Package store defines the durable record store used by repopulse.
// Implementations live in the postgres and sqlite subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/spiffcs/repopulse/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SubscriberStore persists subscribers and their credentials.
type SubscriberStore interface {
	// UpsertSubscriber creates the subscriber if needed and returns it.
	UpsertSubscriber(ctx context.Context, chatID int64) (model.Subscriber, error)
	GetSubscriber(ctx context.Context, chatID int64) (model.Subscriber, error)
	ListSubscribers(ctx context.Context) ([]model.Subscriber, error)

	// SetCredential stores the encrypted token, its nonce and username and
	// marks the subscriber connected with no repository limit, atomically.
	SetCredential(ctx context.Context, chatID int64, ciphertext, nonce, username string) error
	// ClearCredential removes the credential and restores the default limit, atomically.
	ClearCredential(ctx context.Context, chatID int64) error
}

// RepositoryStore persists repositories.
type RepositoryStore interface {
	UpsertRepository(ctx context.Context, fullName string) (model.Repository, error)
}

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	// SaveSubscription inserts or updates the filter of a subscription.
	SaveSubscription(ctx context.Context, subscriberID, repoID int64, filter model.Filter) (model.Subscription, error)
	GetSubscription(ctx context.Context, subscriberID int64, fullName string) (model.Subscription, error)
	// DeleteSubscription removes the subscription and its repo-check state.
	DeleteSubscription(ctx context.Context, subscriberID, repoID int64) error
	ListSubscriptions(ctx context.Context, subscriberID int64) ([]model.Subscription, error)
	ListSubscriptionsByRepo(ctx context.Context, fullName string) ([]model.Subscription, error)
	CountSubscriptions(ctx context.Context, subscriberID int64) (int, error)
}

// StateStore persists per-(subscriber, repository) watermarks.
type StateStore interface {
	GetRepoState(ctx context.Context, subscriberID, repoID int64) (model.RepoCheckState, error)
	// InitRepoState inserts the state only when none exists.
	InitRepoState(ctx context.Context, subscriberID, repoID int64, issueCheck, prCheck time.Time) error
	// AdvanceRepoState overwrites both watermarks, inserting when absent.
	// It returns ErrNotFound without writing when the subscription is gone,
	// so state never outlives its subscription.
	AdvanceRepoState(ctx context.Context, subscriberID, repoID int64, issueCheck, prCheck time.Time) error
}

// EventStore records processed webhook deliveries.
type EventStore interface {
	IsEventProcessed(ctx context.Context, id string) (bool, error)
	// MarkEventProcessed is a no-op for an id that is already recorded.
	MarkEventProcessed(ctx context.Context, id string, at time.Time) error
}

// Store is the complete record store.
type Store interface {
	SubscriberStore
	RepositoryStore
	SubscriptionStore
	StateStore
	EventStore

	Ping(ctx context.Context) error
	Close() error
}

// Drivers supported by Open in the cmd package.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)
