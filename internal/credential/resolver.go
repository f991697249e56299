// Package credential picks the GitHub token used for a subscriber.
package credential

import (
	"context"
	"errors"

	"github.com/spiffcs/repopulse/internal/crypto"
	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/store"
)

// Source tells where a resolved token came from.
type Source string

const (
	SourceSubscriber Source = "subscriber"
	SourceFallback   Source = "fallback"
)

// ErrNoFallback is returned by NewResolver when no shared token is configured.
var ErrNoFallback = errors.New("fallback GitHub token is required")

// Credential is a usable GitHub token.
type Credential struct {
	// Token is never logged.
	Token  string
	Source Source
}

// SubscriberReader is the subset of the store the resolver needs.
type SubscriberReader interface {
	GetSubscriber(ctx context.Context, chatID int64) (model.Subscriber, error)
}

// Resolver returns the subscriber's own token when one is stored and
// decryptable, and the shared fallback otherwise.
type Resolver struct {
	subscribers SubscriberReader
	crypto      crypto.Service
	fallback    string
}

// NewResolver creates a Resolver. An empty fallback is a configuration error.
func NewResolver(subscribers SubscriberReader, svc crypto.Service, fallback string) (*Resolver, error) {
	if fallback == "" {
		return nil, ErrNoFallback
	}
	return &Resolver{subscribers: subscribers, crypto: svc, fallback: fallback}, nil
}

// Resolve never fails: every problem with the subscriber's own credential
// degrades to the fallback.
func (r *Resolver) Resolve(ctx context.Context, chatID int64) Credential {
	sub, err := r.subscribers.GetSubscriber(ctx, chatID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return r.fallbackCredential()
	case err != nil:
		log.WarnContext(ctx, "failed to load subscriber credential, using fallback", "chat_id", chatID, "error", err)
		return r.fallbackCredential()
	}

	if !sub.HasCredential() {
		return r.fallbackCredential()
	}

	token, err := r.crypto.Decrypt(sub.TokenCiphertext, sub.TokenNonce)
	if err != nil || token == "" {
		log.WarnContext(ctx, "failed to decrypt subscriber credential, using fallback", "chat_id", chatID, "error", err)
		return r.fallbackCredential()
	}
	return Credential{Token: token, Source: SourceSubscriber}
}

func (r *Resolver) fallbackCredential() Credential {
	return Credential{Token: r.fallback, Source: SourceFallback}
}
