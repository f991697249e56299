package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spiffcs/repopulse/internal/constants"
	"github.com/spiffcs/repopulse/internal/crypto"
)

// OAuthStates issues and consumes one-time OAuth state tokens.
type OAuthStates struct {
	store Store
	ttl   time.Duration
}

// NewOAuthStates creates OAuthStates with the default lifetime.
func NewOAuthStates(store Store) *OAuthStates {
	return &OAuthStates{store: store, ttl: constants.OAuthStateTTL}
}

type oauthState struct {
	ChatID int64 `json:"chatId"`
}

// Issue creates a random state bound to chatID.
func (o *OAuthStates) Issue(ctx context.Context, chatID int64) (string, error) {
	state, err := crypto.RandomState()
	if err != nil {
		return "", err
	}
	if err := putJSON(ctx, o.store, oauthStateKey(state), oauthState{ChatID: chatID}, o.ttl); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return state, nil
}

// Consume returns the chat bound to state and invalidates it. Unknown,
// expired and already used states return ErrNotFound.
func (o *OAuthStates) Consume(ctx context.Context, state string) (int64, error) {
	if state == "" {
		return 0, ErrNotFound
	}
	data, err := o.store.Take(ctx, oauthStateKey(state))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	var st oauthState
	if err := decodeJSON(data, &st); err != nil {
		return 0, err
	}
	return st.ChatID, nil
}
