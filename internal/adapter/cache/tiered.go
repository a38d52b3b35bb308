package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/raulk/clock"
	"go.uber.org/atomic"

	"bitcoin-rates-service/internal/domain/model"
	"bitcoin-rates-service/internal/domain/ports"
	"bitcoin-rates-service/pkg/logger"
	"bitcoin-rates-service/pkg/utils"
)

const (
	DefaultTTL = 5 * time.Minute

	// OfflineRatesKey is tried first by OfflineData.
	OfflineRatesKey = "bitcoin_rates"

	offlineKeyMarker = "rates"
)

// Recorder receives cache events for metrics.
type Recorder interface {
	CacheHit(tier string)
	CacheMiss()
	StorageFailure(op string)
	CacheEvictions(n int)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(string) {}
func (nopRecorder) CacheMiss() {}
func (nopRecorder) StorageFailure(string) {}
func (nopRecorder) CacheEvictions(int) {}

type Option func(*TieredCache)

func WithClock(clk clock.Clock) Option {
	return func(c *TieredCache) { c.clock = clk }
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *TieredCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *TieredCache) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithKeyPrefix namespaces persisted entries and names the index key.
func WithKeyPrefix(prefix, indexKey string) Option {
	return func(c *TieredCache) {
		c.prefix = prefix
		c.indexKey = indexKey
	}
}

// TieredCache is a TTL cache with a memory tier in front of a persistent
// tier. Memory is authoritative for the running process: persistent-tier
// failures are logged and degrade the cache to memory only, they are never
// returned to the caller. Staleness is evaluated lazily on read; Cleanup
// sweeps eagerly.
type TieredCache struct {
	mutex      sync.Mutex
	memory     *MemoryCache
	persistent *PersistentCache
	clock      clock.Clock
	defaultTTL time.Duration
	log        *logger.Logger
	recorder   Recorder

	prefix   string
	indexKey string

	lastCleanup atomic.Int64
}

var _ ports.RateCache = (*TieredCache)(nil)

// NewTieredCache builds the cache over store and runs one Cleanup pass.
func NewTieredCache(store Store, log *logger.Logger, opts ...Option) *TieredCache {
	c := &TieredCache{
		memory:     NewMemoryCache(),
		clock:      clock.New(),
		defaultTTL: DefaultTTL,
		log:        log,
		recorder:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.persistent = NewPersistentCache(store, c.prefix, c.indexKey)

	c.Cleanup(context.Background())
	return c
}

func (c *TieredCache) now() int64 {
	return utils.EpochMillis(c.clock.Now())
}

// Set stores data for ttl (DefaultTTL when ttl <= 0). It returns false when
// only the memory tier was written.
func (c *TieredCache) Set(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	entry := &Entry{
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now + ttl.Milliseconds(),
	}

	_ = c.memory.Save(ctx, key, entry)

	if err := c.persistent.Save(ctx, key, entry); err != nil {
		c.log.Warn("Failed to persist cache entry, keeping it in memory only", "key", key, "error", err)
		c.recorder.StorageFailure("set")
		return false
	}

	c.log.Debug("Cache set", "key", key, "ttl", ttl)
	return true
}

// Get returns the fresh payload for key, promoting persistent hits into
// memory. A stale entry is deleted and reported as a miss.
func (c *TieredCache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()

	if entry, found, _ := c.memory.Load(ctx, key); found {
		if entry.Expired(now) {
			c.log.Debug("Cache entry expired", "key", key)
			_ = c.deleteLocked(ctx, key)
			c.recorder.CacheMiss()
			return nil, false
		}
		c.log.Debug("Cache hit", "key", key, "tier", "memory")
		c.recorder.CacheHit("memory")
		return entry.Data, true
	}

	entry, found, err := c.persistent.Load(ctx, key)
	if err != nil {
		c.log.Warn("Failed to read persistent cache entry", "key", key, "error", err)
		c.recorder.StorageFailure("get")
		c.recorder.CacheMiss()
		return nil, false
	}
	if !found {
		c.log.Debug("Cache miss", "key", key)
		c.recorder.CacheMiss()
		return nil, false
	}
	if entry.Expired(now) {
		c.log.Debug("Cache entry expired", "key", key)
		_ = c.deleteLocked(ctx, key)
		c.recorder.CacheMiss()
		return nil, false
	}

	_ = c.memory.Save(ctx, key, entry)
	c.log.Debug("Cache hit", "key", key, "tier", "persistent")
	c.recorder.CacheHit("persistent")
	return entry.Data, true
}

// IsExpired reports whether key has no entry or its entry is past expiry.
// A non-nil entry is checked directly without a lookup.
func (c *TieredCache) IsExpired(ctx context.Context, key string, entry *Entry) bool {
	if entry == nil {
		c.mutex.Lock()
		entry = c.lookupLocked(ctx, key)
		c.mutex.Unlock()
	}
	if entry == nil {
		return true
	}
	return entry.Expired(c.now())
}

// Delete removes key from both tiers. It returns false only when the
// persistent tier failed.
func (c *TieredCache) Delete(ctx context.Context, key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.deleteLocked(ctx, key) == nil
}

func (c *TieredCache) deleteLocked(ctx context.Context, key string) error {
	_ = c.memory.Remove(ctx, key)

	if err := c.persistent.Remove(ctx, key); err != nil {
		c.log.Warn("Failed to delete persistent cache entry", "key", key, "error", err)
		c.recorder.StorageFailure("delete")
		return err
	}
	return nil
}

// Clear drops every entry and the metadata index. Calling it again is a no-op.
func (c *TieredCache) Clear(ctx context.Context) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_ = c.memory.Purge(ctx)

	if err := c.persistent.Purge(ctx); err != nil {
		c.log.Warn("Failed to clear persistent cache", "error", err)
		c.recorder.StorageFailure("clear")
		return false
	}

	c.log.Info("Cache cleared")
	return true
}

// ClearMemory drops only the memory tier, as a process restart would.
func (c *TieredCache) ClearMemory(ctx context.Context) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_ = c.memory.Purge(ctx)
}

func (c *TieredCache) Stats(ctx context.Context) model.CacheStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	stats := model.CacheStats{}
	stats.MemoryEntries, _ = c.memory.Len(ctx)

	if n, err := c.persistent.Len(ctx); err != nil {
		c.log.Warn("Failed to count persistent cache entries", "error", err)
	} else {
		stats.StorageEntries = n
	}

	if index, err := c.persistent.Index(ctx); err != nil {
		c.log.Warn("Failed to read cache index for size estimate", "error", err)
	} else {
		for _, record := range index {
			stats.EstimatedSize += record.Size
		}
	}

	if last := c.lastCleanup.Load(); last != 0 {
		stats.LastCleanup = utils.FromEpochMillis(last)
	}
	return stats
}

// OfflineData returns the best available rates payload regardless of age:
// the OfflineRatesKey entry if present, otherwise the most recently created
// entry whose key contains "rates". There is no age ceiling.
func (c *TieredCache) OfflineData(ctx context.Context) (json.RawMessage, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry := c.lookupLocked(ctx, OfflineRatesKey); entry != nil {
		return entry.Data, true
	}

	candidates := make(map[string]struct{})
	for key := range c.memory.Snapshot() {
		if strings.Contains(key, offlineKeyMarker) {
			candidates[key] = struct{}{}
		}
	}
	if index, err := c.persistent.Index(ctx); err != nil {
		c.log.Warn("Failed to read cache index for offline data", "error", err)
	} else {
		for key := range index {
			if strings.Contains(key, offlineKeyMarker) {
				candidates[key] = struct{}{}
			}
		}
	}

	var best *Entry
	for key := range candidates {
		entry := c.lookupLocked(ctx, key)
		if entry == nil {
			continue
		}
		if best == nil || entry.CreatedAt > best.CreatedAt {
			best = entry
		}
	}

	if best == nil {
		return nil, false
	}
	return best.Data, true
}

// Cleanup deletes every expired entry and returns how many were removed.
func (c *TieredCache) Cleanup(ctx context.Context) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0

	orphans, err := c.persistent.Reconcile(ctx, now)
	if err != nil {
		c.log.Warn("Failed to reconcile cache index", "error", err)
	}
	removed += orphans

	deleted := make(map[string]struct{})
	index, err := c.persistent.Index(ctx)
	if err != nil {
		c.log.Warn("Failed to read cache index for cleanup", "error", err)
	}
	for key, record := range index {
		if now <= record.ExpiresAt {
			continue
		}
		if err := c.deleteLocked(ctx, key); err == nil {
			deleted[key] = struct{}{}
			removed++
		}
	}

	for key, entry := range c.memory.Snapshot() {
		if _, done := deleted[key]; done || !entry.Expired(now) {
			continue
		}
		_ = c.memory.Remove(ctx, key)
		removed++
	}

	c.lastCleanup.Store(now)
	c.recorder.CacheEvictions(removed)
	c.log.Info("Cleared expired cache entries", "count", removed)
	return removed
}

func (c *TieredCache) lookupLocked(ctx context.Context, key string) *Entry {
	if entry, found, _ := c.memory.Load(ctx, key); found {
		return entry
	}

	entry, found, err := c.persistent.Load(ctx, key)
	if err != nil {
		c.log.Warn("Failed to read persistent cache entry", "key", key, "error", err)
		c.recorder.StorageFailure("get")
		return nil
	}
	if !found {
		return nil
	}
	return entry
}
