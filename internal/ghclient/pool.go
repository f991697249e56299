package ghclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/spiffcs/repopulse/internal/model"
)

// Pool hands out one Client per credential so that every pair polled with
// the same token shares its rate limiter and rate limit state.
type Pool struct {
	opts []Option

	mu      sync.RWMutex
	clients map[string]*Client
	group   singleflight.Group
}

// NewPool creates a pool whose clients are built with opts.
func NewPool(opts ...Option) *Pool {
	return &Pool{
		opts:    opts,
		clients: make(map[string]*Client),
	}
}

// Client returns the client for token, creating it on first use.
func (p *Pool) Client(token string) (*Client, error) {
	key := tokenKey(token)

	p.mu.RLock()
	c, ok := p.clients[key]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		p.mu.RLock()
		existing, ok := p.clients[key]
		p.mu.RUnlock()
		if ok {
			return existing, nil
		}

		// Clients outlive any single request, so they are not bound to one.
		created, err := NewClient(context.Background(), token, p.opts...)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.clients[key] = created
		p.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return v.(*Client), nil
}

// Len returns the number of cached clients.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

func (p *Pool) FetchIssues(ctx context.Context, repo, token string, since *time.Time) ([]model.Item, error) {
	c, err := p.Client(token)
	if err != nil {
		return nil, err
	}
	return c.FetchIssues(ctx, repo, since)
}

func (p *Pool) FetchPullRequests(ctx context.Context, repo, token string, since *time.Time) ([]model.Item, error) {
	c, err := p.Client(token)
	if err != nil {
		return nil, err
	}
	return c.FetchPullRequests(ctx, repo, since)
}

func (p *Pool) ListLabels(ctx context.Context, repo, token string) ([]string, error) {
	c, err := p.Client(token)
	if err != nil {
		return nil, err
	}
	return c.ListLabels(ctx, repo)
}

// tokenKey keeps raw tokens out of map keys.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
