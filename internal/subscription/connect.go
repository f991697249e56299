package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/notify"
	"github.com/spiffcs/repopulse/internal/session"
	"github.com/spiffcs/repopulse/internal/store"
)

// OAuthScopes are requested when linking a GitHub account.
var OAuthScopes = []string{"repo", "read:user"}

// BeginConnect issues a one-time state for chatID and returns the GitHub
// authorization URL that carries it.
func (s *Service) BeginConnect(ctx context.Context, chatID int64) (string, error) {
	if s.oauth == nil || s.states == nil {
		return "", ErrOAuthDisabled
	}

	sub, err := s.store.UpsertSubscriber(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("failed to register subscriber: %w", err)
	}
	if sub.Connected {
		return "", fmt.Errorf("%w as @%s", ErrAlreadyConnected, sub.GitHubUsername)
	}

	state, err := s.states.Issue(ctx, chatID)
	if err != nil {
		return "", err
	}
	return s.oauth.AuthCodeURL(state), nil
}

// ConsumeState resolves an OAuth state to the chat that requested it. It
// can succeed only once per state.
func (s *Service) ConsumeState(ctx context.Context, state string) (int64, error) {
	if s.states == nil {
		return 0, ErrOAuthDisabled
	}
	return s.states.Consume(ctx, state)
}

// CompleteConnect stores token for chatID, lifts the repository limit and
// tells the subscriber.
func (s *Service) CompleteConnect(ctx context.Context, chatID int64, token, username string) error {
	if token == "" {
		return errors.New("empty GitHub token")
	}

	ciphertext, nonce, err := s.crypto.Encrypt(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}
	if _, err := s.store.UpsertSubscriber(ctx, chatID); err != nil {
		return fmt.Errorf("failed to register subscriber: %w", err)
	}
	if err := s.store.SetCredential(ctx, chatID, ciphertext, nonce, username); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	log.InfoContext(ctx, "github connected", "chat_id", chatID, "username", username)

	msg := "✅ GitHub connected successfully!\n\n" +
		"👤 Connected as: @" + notify.EscapeMarkdown(username) + "\n\n" +
		"You can now track unlimited repositories.\n" +
		"Use `repopulse subscribe <repo>` to start tracking!"
	if err := s.sink.Send(ctx, chatID, msg); err != nil {
		log.WarnContext(ctx, "failed to send connect confirmation", "chat_id", chatID, "error", err)
	}
	return nil
}

// Disconnect removes the stored credential. Subscriptions are kept; the
// default repository limit applies again.
func (s *Service) Disconnect(ctx context.Context, chatID int64) error {
	sub, err := s.store.GetSubscriber(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotConnected
	}
	if err != nil {
		return fmt.Errorf("failed to load subscriber: %w", err)
	}
	if !sub.Connected {
		return ErrNotConnected
	}
	if err := s.store.ClearCredential(ctx, chatID); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	log.InfoContext(ctx, "github disconnected", "chat_id", chatID)
	return nil
}

// IsStateNotFound reports whether err means the OAuth state was unknown,
// expired or already used.
func IsStateNotFound(err error) bool {
	return errors.Is(err, session.ErrNotFound)
}
