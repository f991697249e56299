// Package session stores short-lived conversational state (OAuth states and
// filter drafts) with an explicit time to live.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrNotFound is returned when a key is missing or expired.
var ErrNotFound = errors.New("session not found")

// Store is a key-value store whose entries expire.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Take returns the value and deletes it in one step.
	Take(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key schema:
//   oauth_state:{state}      - chat id waiting for the OAuth callback
//   filter_session:{chatID}  - filter draft being edited

func oauthStateKey(state string) string {
	return "oauth_state:" + state
}

func filterSessionKey(chatID int64) string {
	return "filter_session:" + strconv.FormatInt(chatID, 10)
}

func putJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal session value: %w", err)
	}
	return s.Put(ctx, key, data, ttl)
}

func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal session value: %w", err)
	}
	return nil
}
