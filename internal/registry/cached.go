package registry

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

// Cached memoises GetAgent lookups of another registry in an ARC cache.
// Misses are not cached.
type Cached struct {
	inner Registry
	cache *lru.ARCCache
}

// NewCached wraps inner with a cache of the given size.
func NewCached(inner Registry, size int) (*Cached, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) GetAgent(ctx context.Context, walletAddr string) (Agent, error) {
	key := strings.ToLower(strings.TrimSpace(walletAddr))
	if v, ok := c.cache.Get(key); ok {
		return v.(Agent), nil
	}
	a, err := c.inner.GetAgent(ctx, walletAddr)
	if err != nil {
		return Agent{}, err
	}
	c.cache.Add(a.Wallet, a)
	return a, nil
}

func (c *Cached) ListEligible(ctx context.Context, exclude string) ([]Agent, error) {
	agents, err := c.inner.ListEligible(ctx, exclude)
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		c.cache.Add(a.Wallet, a)
	}
	return agents, nil
}

// Purge drops every cached agent, e.g. after the roster is reloaded.
func (c *Cached) Purge() {
	c.cache.Purge()
}

// Len reports the number of cached agents.
func (c *Cached) Len() int {
	return c.cache.Len()
}
