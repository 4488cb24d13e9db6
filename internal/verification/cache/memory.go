// Package cache stores on-ledger verification results keyed by normalized code.
// A miss is reported as sentinel.ErrNotFound.
//
// Revocation is one-way: MarkRevoked leaves a tombstone for the code, and until
// it expires Set refuses any result that is not itself revoked. A lookup that
// read the ledger before a revoke committed cannot refill the cache with its
// stale valid result.
package cache

import (
	"context"
	"sync"
	"time"

	registrymodels "credregistry/internal/registry/models"
	"credregistry/internal/sentinel"
)

type cachedResult struct {
	result   registrymodels.VerificationResult
	storedAt time.Time
}

// InMemoryCache keeps results in process with TTL expiration.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cachedResult
	revoked map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]cachedResult),
		revoked: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *InMemoryCache) Get(_ context.Context, code string) (*registrymodels.VerificationResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.entries[code]
	if !ok || c.now().Sub(cached.storedAt) >= c.ttl {
		return nil, sentinel.ErrNotFound
	}
	return copyResult(&cached.result), nil
}

// Set stores a copy of result. Nil results are ignored, and so are unrevoked
// results for a code marked revoked.
func (c *InMemoryCache) Set(_ context.Context, code string, result *registrymodels.VerificationResult) error {
	if result == nil {
		return nil
	}
	stored := copyResult(result)
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if markedAt, ok := c.revoked[code]; ok && now.Sub(markedAt) < c.ttl && !stored.IsRevoked {
		return nil
	}
	c.entries[code] = cachedResult{result: *stored, storedAt: now}
	return nil
}

// MarkRevoked drops the cached result for code and leaves a tombstone for one TTL.
func (c *InMemoryCache) MarkRevoked(_ context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, code)
	c.revoked[code] = c.now()
	return nil
}

// Sweep drops expired entries and tombstones and returns how many entries remain.
func (c *InMemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for code, cached := range c.entries {
		if now.Sub(cached.storedAt) >= c.ttl {
			delete(c.entries, code)
		}
	}
	for code, markedAt := range c.revoked {
		if now.Sub(markedAt) >= c.ttl {
			delete(c.revoked, code)
		}
	}
	return len(c.entries)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *InMemoryCache) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func copyResult(r *registrymodels.VerificationResult) *registrymodels.VerificationResult {
	out := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}
