package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMaxEntries = 10000

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemorySymbolCache is an in-process SymbolCache used when Redis is not
// configured. It holds at most maxEntries symbols, evicting the least recently
// used, and drops entries older than ttl in the background.
type MemorySymbolCache struct {
	entries *expirable.LRU[string, memoryEntry]
	now     func() time.Time
}

func NewMemorySymbolCache(maxEntries int, ttl time.Duration) *MemorySymbolCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemorySymbolCache{
		entries: expirable.NewLRU[string, memoryEntry](maxEntries, nil, ttl),
		now:     time.Now,
	}
}

func (c *MemorySymbolCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	// A per-call ttl shorter than the cache-wide one is enforced here.
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *MemorySymbolCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) == 0 {
		return nil
	}
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries.Add(key, entry)
	return nil
}

func (c *MemorySymbolCache) Len() int {
	return c.entries.Len()
}
