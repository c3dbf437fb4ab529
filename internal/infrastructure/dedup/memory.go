// Package dedup keeps track of inbound message ids that were already processed.
package dedup

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultTTL        = 7 * 24 * time.Hour
	DefaultMaxEntries = 100_000
)

// MemoryCache is a process-local seen set bounded by TTL and entry count.
// When full, the least recently marked id is evicted first.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int
	entries    *expirable.LRU[string, struct{}]
}

func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    expirable.NewLRU[string, struct{}](maxEntries, nil, ttl),
	}
}

func (c *MemoryCache) Seen(_ context.Context, messageID string) (bool, error) {
	// Peek honours expiry without refreshing recency.
	_, ok := c.entries.Peek(messageID)
	return ok, nil
}

// MarkSeen adds the id or refreshes its expiry and recency.
func (c *MemoryCache) MarkSeen(_ context.Context, messageID string) error {
	c.entries.Add(messageID, struct{}{})
	return nil
}

func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
