package ghclient

import (
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v57/github"
)

// FetchError reports a failed listing against one repository. Status is the
// upstream HTTP status, or 0 when no response was received.
type FetchError struct {
	Repo   string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("failed to fetch %s: status %d: %v", e.Repo, e.Status, e.Err)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.Repo, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// newFetchError classifies err into a FetchError for repo.
func newFetchError(repo string, resp *gh.Response, err error) *FetchError {
	fe := &FetchError{Repo: repo, Err: err}

	var ghErr *gh.ErrorResponse
	var rlErr *gh.RateLimitError
	switch {
	case errors.Is(err, ErrRateLimited):
		fe.Status = http.StatusTooManyRequests
	case errors.As(err, &rlErr) && rlErr.Response != nil:
		fe.Status = rlErr.Response.StatusCode
	case errors.As(err, &ghErr) && ghErr.Response != nil:
		fe.Status = ghErr.Response.StatusCode
	case resp != nil && resp.Response != nil:
		fe.Status = resp.StatusCode
	}
	return fe
}

// StatusOf returns the HTTP status carried by a FetchError in err's chain,
// or 0.
func StatusOf(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}
