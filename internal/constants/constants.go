// Package constants provides a centralized location for all configuration
// values and magic numbers used throughout the repopulse application.
package constants

import "time"

// GitHub API constants
const (
	// UserAgent is sent with every GitHub API request.
	UserAgent = "repopulse-bot"

	// DefaultPageSize is the page size used for paginated GitHub listings.
	// GitHub caps per_page at 100.
	DefaultPageSize = 100

	// DefaultRequestTimeout bounds a single GitHub API request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRetryMax is the number of retries for transient GitHub failures.
	DefaultRetryMax = 3
)

// Rate limiting constants
const (
	// RateLimitLowWatermark is the threshold below which rate limit
	// warnings are logged.
	RateLimitLowWatermark = 100

	// DefaultRequestsPerSecond is the per-credential request budget.
	DefaultRequestsPerSecond = 1.0

	// DefaultRequestBurst is the per-credential burst size.
	DefaultRequestBurst = 5
)

// Poll constants
const (
	// DefaultPollInterval is the time between poll cycles.
	DefaultPollInterval = 60 * time.Second

	// DefaultPollWorkers is the number of (subscriber, repository) pairs
	// processed concurrently within one cycle.
	DefaultPollWorkers = 4
)

// Subscription constants
const (
	// DefaultRepoLimit is the number of repositories an unconnected
	// subscriber may track.
	DefaultRepoLimit = 5

	// UnlimitedRepos marks a subscriber with no repository limit.
	UnlimitedRepos = 0

	// OAuthStateTTL is how long a connect link stays valid.
	OAuthStateTTL = 10 * time.Minute

	// FilterSessionTTL is how long a filter draft is kept.
	FilterSessionTTL = time.Hour
)

// Notification constants
const (
	// DefaultMaxTitleWidth is the number of display columns a title may
	// occupy in a notification before it is truncated.
	DefaultMaxTitleWidth = 80

	// UnknownAuthor is shown when an item has no author login.
	UnknownAuthor = "Unknown"
)

// Item state constants
const (
	// StateOpen indicates an issue or PR is open.
	StateOpen = "open"

	// StateClosed indicates an issue or PR is closed.
	StateClosed = "closed"

	// StateMerged indicates a PR has been merged.
	StateMerged = "merged"
)
