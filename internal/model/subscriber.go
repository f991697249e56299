package model

import "time"

// Subscriber is a chat identity that tracks repositories.
type Subscriber struct {
	ID     int64 `json:"id"`
	ChatID int64 `json:"chatId"`

	// TokenCiphertext and TokenNonce are the encrypted GitHub credential and
	// its decryption material. Both are empty for unconnected subscribers.
	TokenCiphertext string `json:"-"`
	TokenNonce      string `json:"-"`

	GitHubUsername string `json:"githubUsername,omitempty"`

	// RepoLimit is the maximum number of subscriptions; 0 means unbounded.
	RepoLimit int  `json:"repoLimit"`
	Connected bool `json:"connected"`

	CreatedAt time.Time `json:"createdAt"`
}

// HasCredential reports whether both halves of an encrypted credential are stored.
func (s Subscriber) HasCredential() bool {
	return s.TokenCiphertext != "" && s.TokenNonce != ""
}

// Unlimited reports whether the subscriber may track any number of repositories.
func (s Subscriber) Unlimited() bool {
	return s.RepoLimit <= 0
}

// Repository is a globally deduplicated GitHub repository.
type Repository struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
}

// HTMLURL returns the repository's web URL.
func (r Repository) HTMLURL() string {
	return "https://github.com/" + r.FullName
}

// Filter selects which items of a subscription are delivered.
// Empty sets mean "no constraint".
type Filter struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

// Subscription links a subscriber to a repository.
type Subscription struct {
	ID           int64     `json:"id"`
	SubscriberID int64     `json:"subscriberId"`
	ChatID       int64     `json:"chatId"`
	RepoID       int64     `json:"repoId"`
	RepoFullName string    `json:"repoFullName"`
	Filter       Filter    `json:"filter"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RepoCheckState holds the per-(subscriber, repository) watermarks.
// Issues and pull requests advance independently.
type RepoCheckState struct {
	SubscriberID         int64     `json:"subscriberId"`
	RepoID               int64     `json:"repoId"`
	LastIssueCheck       time.Time `json:"lastIssueCheck"`
	LastPullRequestCheck time.Time `json:"lastPullRequestCheck"`
}

// ProcessedEvent marks a webhook delivery as handled.
type ProcessedEvent struct {
	ID          string    `json:"id"`
	ProcessedAt time.Time `json:"processedAt"`
}
