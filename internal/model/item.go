// Package model contains domain types for the repopulse application.
// These types are independent of any external GitHub library.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ItemType represents whether an item is an issue or pull request
type ItemType string

const (
	ItemTypeIssue       ItemType = "issue"
	ItemTypePullRequest ItemType = "pull_request"
)

// DisplayName returns the human readable name of the item type.
func (t ItemType) DisplayName() string {
	switch t {
	case ItemTypePullRequest:
		return "Pull Request"
	default:
		return "Issue"
	}
}

// Item is the normalized view of a GitHub issue or pull request.
// The Type field is the discriminator; every other field is shared so
// downstream code never inspects the raw upstream shape.
type Item struct {
	Type       ItemType  `json:"type"`
	Repository string    `json:"repository"`
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	HTMLURL    string    `json:"htmlUrl"`
	Author     string    `json:"author,omitempty"`
	Labels     []string  `json:"labels,omitempty"`
	State      string    `json:"state"` // open, closed, merged
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
}

// IsPullRequest reports whether the item is a pull request.
func (i Item) IsPullRequest() bool {
	return i.Type == ItemTypePullRequest
}

// Key returns a stable identifier for the item within its repository.
func (i Item) Key() string {
	return fmt.Sprintf("%s#%d", i.Repository, i.Number)
}

// UnmarshalJSON rejects unknown item types so a malformed payload cannot
// slip past the discriminator.
func (i *Item) UnmarshalJSON(data []byte) error {
	type Alias Item
	aux := (*Alias)(i)
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	switch i.Type {
	case ItemTypeIssue, ItemTypePullRequest:
		return nil
	case "":
		i.Type = ItemTypeIssue
		return nil
	default:
		return fmt.Errorf("unknown item type %q", i.Type)
	}
}
