package ghclient

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrRateLimited is returned when the GitHub API rate limit has been exceeded.
var ErrRateLimited = errors.New("rate limited")

// RateLimitState tracks the rate limit of a single credential.
type RateLimitState struct {
	mu        sync.RWMutex
	clock     clockwork.Clock
	limited   bool
	resetAt   time.Time
	remaining int
	limit     int
}

// NewRateLimitState returns an unlimited state that reads time from clock.
func NewRateLimitState(clock clockwork.Clock) *RateLimitState {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimitState{clock: clock, remaining: -1, limit: -1}
}

// IsLimited returns true if we are currently rate limited.
func (s *RateLimitState) IsLimited() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.limited {
		return false
	}

	// Check if rate limit has reset
	return s.clock.Now().Before(s.resetAt)
}

// SetLimited sets the rate limit state.
func (s *RateLimitState) SetLimited(limited bool, resetAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limited = limited
	s.resetAt = resetAt
}

// Update updates the rate limit state from response headers.
func (s *RateLimitState) Update(remaining, limit int, resetAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining = remaining
	s.limit = limit
	s.resetAt = resetAt
	s.limited = remaining == 0
}

// limitedUntil picks when a rate limited credential may be used again: the
// X-RateLimit-Reset time, else Retry-After, else one minute from now.
func limitedUntil(resp *http.Response, resetAt, now time.Time) time.Time {
	if !resetAt.IsZero() {
		return resetAt
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	return now.Add(time.Minute)
}

// RateLimitStatus is a snapshot of a RateLimitState.
type RateLimitStatus struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
	Limited   bool
}

// Status returns the current rate limit status. Remaining and Limit are -1
// until the first response has been seen.
func (s *RateLimitState) Status() RateLimitStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return RateLimitStatus{
		Remaining: s.remaining,
		Limit:     s.limit,
		ResetAt:   s.resetAt,
		Limited:   s.limited && s.clock.Now().Before(s.resetAt),
	}
}

// parseRateLimitHeaders extracts rate limit info from response headers.
func parseRateLimitHeaders(resp *http.Response) (remaining, limit int, resetAt time.Time) {
	remaining = -1
	limit = -1

	if remainingStr := resp.Header.Get("X-RateLimit-Remaining"); remainingStr != "" {
		if rem, err := strconv.Atoi(remainingStr); err == nil {
			remaining = rem
		}
	}

	if limitStr := resp.Header.Get("X-RateLimit-Limit"); limitStr != "" {
		if lim, err := strconv.Atoi(limitStr); err == nil {
			limit = lim
		}
	}

	if resetStr := resp.Header.Get("X-RateLimit-Reset"); resetStr != "" {
		if resetTime, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
			resetAt = time.Unix(resetTime, 0)
		}
	}

	return remaining, limit, resetAt
}
