package agentcache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the fallback for a misconfigured (non-positive)
// capacity.
const DefaultCapacity = 2048

// LRUCache is the in-memory agent cache backend: fixed capacity, eviction
// synchronous with insertion. Find does not promote recency.
type LRUCache struct {
	cache *lru.Cache[string, Entry]
}

// NewLRUCache constructs an in-memory agent cache of the given capacity.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, _ := lru.New[string, Entry](capacity)
	return &LRUCache{cache: cache}
}

func (c *LRUCache) Find(_ context.Context, key string) (Entry, bool, error) {
	entry, ok := c.cache.Peek(key)
	return entry, ok, nil
}

func (c *LRUCache) Store(_ context.Context, key string, entry Entry) error {
	c.cache.Add(key, entry)
	return nil
}

func (c *LRUCache) Ping(_ context.Context) error {
	return nil
}

var _ Cache = (*LRUCache)(nil)
