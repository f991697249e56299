package ghclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/spiffcs/repopulse/internal/constants"
	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/metrics"
)

// rateLimitTransport wraps an http.RoundTripper to handle GitHub rate limits
// and to pace requests for one credential.
type rateLimitTransport struct {
	base    http.RoundTripper
	state   *RateLimitState
	limiter *rate.Limiter
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Check if we're already rate limited before making the request
	if t.state.IsLimited() {
		return nil, ErrRateLimited
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	req.Header.Set("User-Agent", constants.UserAgent)

	endpoint := endpointOf(req.URL.Path)
	resp, err := t.base.RoundTrip(req)
	if err != nil && resp != nil {
		// Retries exhausted: hand the final response to go-github so it
		// reports the upstream status.
		err = nil
	}
	if err != nil {
		metrics.GitHubRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return resp, err
	}
	metrics.GitHubRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	// Parse and update rate limit state from response headers
	remaining, limit, resetAt := parseRateLimitHeaders(resp)
	if remaining >= 0 && limit > 0 {
		t.state.Update(remaining, limit, resetAt)
		metrics.GitHubRateLimitRemaining.Set(float64(remaining))
	}

	if remaining <= constants.RateLimitLowWatermark && remaining > 0 {
		log.Debug("rate limit low", "remaining", remaining, "resets_at", resetAt.Format(time.RFC3339))
	}

	if isRateLimited(resp) {
		t.state.SetLimited(true, limitedUntil(resp, resetAt, t.state.clock.Now()))
		_ = resp.Body.Close()
		return nil, ErrRateLimited
	}

	return resp, nil
}

// isRateLimited reports a 429, or a 403 with the quota exhausted.
func isRateLimited(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get("X-RateLimit-Remaining") == "0"
	default:
		return false
	}
}

// checkRetry retries like retryablehttp's default policy, except that rate
// limit responses are returned at once so rateLimitTransport can record
// them instead of sleeping on Retry-After.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && isRateLimited(resp) {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// endpointOf maps a request path to a low-cardinality metrics label.
func endpointOf(path string) string {
	switch {
	case strings.HasSuffix(path, "/issues"):
		return "issues"
	case strings.HasSuffix(path, "/pulls"):
		return "pulls"
	case strings.HasSuffix(path, "/labels"):
		return "labels"
	case strings.HasSuffix(path, "/rate_limit"):
		return "rate_limit"
	case strings.HasSuffix(path, "/user"):
		return "user"
	default:
		return "other"
	}
}

// Option configures a Client.
type Option func(*options)

type options struct {
	baseURL  string
	timeout  time.Duration
	retryMax int
	pageSize int
	rps      float64
	burst    int
	clock    clockwork.Clock
}

func defaultOptions() options {
	return options{
		timeout:  constants.DefaultRequestTimeout,
		retryMax: constants.DefaultRetryMax,
		pageSize: constants.DefaultPageSize,
		rps:      constants.DefaultRequestsPerSecond,
		burst:    constants.DefaultRequestBurst,
		clock:    clockwork.NewRealClock(),
	}
}

// WithBaseURL points the client at a different API root (GitHub Enterprise
// or a test server).
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetryMax sets how many times transient failures are retried.
func WithRetryMax(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.retryMax = n
		}
	}
}

// WithPageSize sets per_page for listings. Values outside 1..100 are ignored.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 && n <= constants.DefaultPageSize {
			o.pageSize = n
		}
	}
}

// WithRateLimit paces requests made with the client's credential.
// A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rps = rps
		o.burst = burst
	}
}

// WithClock sets the clock used for rate limit resets.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// Client wraps the GitHub API client for a single credential.
type Client struct {
	client   *gh.Client
	rate     *RateLimitState
	pageSize int
}

// NewClient creates a new GitHub client using an access token.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("GitHub token not provided")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)

	rc := retryablehttp.NewClient()
	rc.RetryMax = o.retryMax
	rc.Logger = log.Logger()
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.CheckRetry = checkRetry
	rc.HTTPClient = oauth2.NewClient(ctx, ts)
	rc.HTTPClient.Timeout = o.timeout

	var limiter *rate.Limiter
	if o.rps > 0 {
		burst := o.burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(o.rps), burst)
	}

	state := NewRateLimitState(o.clock)
	hc := rc.StandardClient()
	hc.Transport = &rateLimitTransport{
		base:    hc.Transport,
		state:   state,
		limiter: limiter,
	}

	client := gh.NewClient(hc)
	client.UserAgent = constants.UserAgent

	if o.baseURL != "" {
		base := o.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("failed to parse base URL: %w", err)
		}
		client.BaseURL = u
	}

	return &Client{
		client:   client,
		rate:     state,
		pageSize: o.pageSize,
	}, nil
}

// AuthenticatedUser returns the authenticated user's login
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	user, _, err := c.client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to get authenticated user: %w", err)
	}
	return user.GetLogin(), nil
}

// RateLimits fetches the current GitHub API rate limit status.
func (c *Client) RateLimits(ctx context.Context) (*gh.RateLimits, error) {
	limits, _, err := c.client.RateLimit.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limits: %w", err)
	}
	return limits, nil
}

// RateLimitStatus returns the locally tracked rate limit of this credential.
func (c *Client) RateLimitStatus() RateLimitStatus {
	return c.rate.Status()
}
