package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spiffcs/repopulse/internal/constants"
	"github.com/spiffcs/repopulse/internal/model"
)

// Draft is a filter being edited over several commands before it is applied.
type Draft struct {
	ID     string       `json:"id"`
	Repo   string       `json:"repo"`
	Filter model.Filter `json:"filter"`
}

// Drafts stores one filter draft per chat.
type Drafts struct {
	store Store
	ttl   time.Duration
}

// NewDrafts creates Drafts with the default lifetime.
func NewDrafts(store Store) *Drafts {
	return &Drafts{store: store, ttl: constants.FilterSessionTTL}
}

// Load returns the chat's draft, or ErrNotFound.
func (d *Drafts) Load(ctx context.Context, chatID int64) (Draft, error) {
	data, err := d.store.Get(ctx, filterSessionKey(chatID))
	if err != nil {
		return Draft{}, err
	}
	var draft Draft
	if err := decodeJSON(data, &draft); err != nil {
		return Draft{}, err
	}
	return draft, nil
}

// Save stores draft and restarts its lifetime. A draft without an ID gets one.
func (d *Drafts) Save(ctx context.Context, chatID int64, draft Draft) (Draft, error) {
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	if err := putJSON(ctx, d.store, filterSessionKey(chatID), draft, d.ttl); err != nil {
		return Draft{}, err
	}
	return draft, nil
}

// Clear discards the chat's draft.
func (d *Drafts) Clear(ctx context.Context, chatID int64) error {
	return d.store.Delete(ctx, filterSessionKey(chatID))
}
