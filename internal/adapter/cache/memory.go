package cache

import (
	"context"
	"encoding/json"
	"sync"
)

// Entry is a cached payload with its lifetime in epoch milliseconds.
// ExpiresAt is fixed at creation.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt int64           `json:"expiresAt"`
	CreatedAt int64           `json:"createdAt"`
}

func (e *Entry) Expired(now int64) bool {
	return now > e.ExpiresAt
}

// Tier is one level of the cache.
type Tier interface {
	Load(ctx context.Context, key string) (*Entry, bool, error)
	Save(ctx context.Context, key string, entry *Entry) error
	Remove(ctx context.Context, key string) error
	Purge(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

var (
	_ Tier = (*MemoryCache)(nil)
	_ Tier = (*PersistentCache)(nil)
)

// MemoryCache is the volatile tier. It never fails.
type MemoryCache struct {
	cacheMap map[string]*Entry
	mutex    sync.RWMutex
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		cacheMap: make(map[string]*Entry),
	}
}

func (c *MemoryCache) Load(_ context.Context, key string) (*Entry, bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, found := c.cacheMap[key]
	return entry, found, nil
}

func (c *MemoryCache) Save(_ context.Context, key string, entry *Entry) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cacheMap[key] = entry
	return nil
}

func (c *MemoryCache) Remove(_ context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.cacheMap, key)
	return nil
}

func (c *MemoryCache) Purge(_ context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cacheMap = make(map[string]*Entry)
	return nil
}

func (c *MemoryCache) Len(_ context.Context) (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.cacheMap), nil
}

// Snapshot copies the current key to entry mapping.
func (c *MemoryCache) Snapshot() map[string]*Entry {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	out := make(map[string]*Entry, len(c.cacheMap))
	for key, entry := range c.cacheMap {
		out[key] = entry
	}
	return out
}
