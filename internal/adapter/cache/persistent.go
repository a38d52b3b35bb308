package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

const (
	DefaultKeyPrefix = "btcrates_cache_"
	DefaultIndexKey  = "btcrates_metadata"
)

// IndexRecord describes one persisted entry without its payload.
type IndexRecord struct {
	ExpiresAt int64 `json:"expiresAt"`
	UpdatedAt int64 `json:"updatedAt"`
	Size      int64 `json:"size"`
}

// PersistentCache keeps entries under a key prefix in a Store together with
// a metadata index stored under its own key. Every error wraps
// ErrStorageFailure.
type PersistentCache struct {
	store    Store
	prefix   string
	indexKey string
}

func NewPersistentCache(store Store, prefix, indexKey string) *PersistentCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if indexKey == "" {
		indexKey = DefaultIndexKey
	}
	return &PersistentCache{
		store:    store,
		prefix:   prefix,
		indexKey: indexKey,
	}
}

func (p *PersistentCache) storageKey(key string) string {
	return p.prefix + key
}

func (p *PersistentCache) Load(ctx context.Context, key string) (*Entry, bool, error) {
	raw, found, err := p.store.GetItem(ctx, p.storageKey(key))
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrStorageFailure, key, err)
	}
	if !found {
		return nil, false, nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false, fmt.Errorf("%w: decode %s: %v", ErrStorageFailure, key, err)
	}
	return &entry, true, nil
}

// Save writes the entry and then its index record.
func (p *PersistentCache) Save(ctx context.Context, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrStorageFailure, key, err)
	}

	if err := p.store.SetItem(ctx, p.storageKey(key), string(data)); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStorageFailure, key, err)
	}

	return p.updateIndex(ctx, func(index map[string]IndexRecord) bool {
		index[key] = IndexRecord{
			ExpiresAt: entry.ExpiresAt,
			UpdatedAt: entry.CreatedAt,
			Size:      int64(len(data)),
		}
		return true
	})
}

func (p *PersistentCache) Remove(ctx context.Context, key string) error {
	if err := p.store.RemoveItem(ctx, p.storageKey(key)); err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrStorageFailure, key, err)
	}

	return p.updateIndex(ctx, func(index map[string]IndexRecord) bool {
		if _, ok := index[key]; !ok {
			return false
		}
		delete(index, key)
		return true
	})
}

// Purge removes every prefixed key and the index. Removal keeps going after
// individual failures.
func (p *PersistentCache) Purge(ctx context.Context) error {
	keys, err := p.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("%w: list keys: %v", ErrStorageFailure, err)
	}

	var result *multierror.Error
	for _, k := range keys {
		if k == p.indexKey || !strings.HasPrefix(k, p.prefix) {
			continue
		}
		if err := p.store.RemoveItem(ctx, k); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", k, err))
		}
	}
	if err := p.store.RemoveItem(ctx, p.indexKey); err != nil {
		result = multierror.Append(result, fmt.Errorf("remove index: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return nil
}

func (p *PersistentCache) Len(ctx context.Context) (int, error) {
	keys, err := p.StoredKeys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// StoredKeys lists cache keys present in the store, without the prefix.
func (p *PersistentCache) StoredKeys(ctx context.Context) ([]string, error) {
	keys, err := p.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list keys: %v", ErrStorageFailure, err)
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != p.indexKey && strings.HasPrefix(k, p.prefix) {
			out = append(out, strings.TrimPrefix(k, p.prefix))
		}
	}
	return out, nil
}

func (p *PersistentCache) Index(ctx context.Context) (map[string]IndexRecord, error) {
	raw, found, err := p.store.GetItem(ctx, p.indexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: get index: %v", ErrStorageFailure, err)
	}

	index := make(map[string]IndexRecord)
	if !found || raw == "" {
		return index, nil
	}
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		return nil, fmt.Errorf("%w: decode index: %v", ErrStorageFailure, err)
	}
	return index, nil
}

// Reconcile brings the index and the stored entries back in line: index
// records without an entry are dropped, and entries without a record are
// re-indexed, or removed when expired or unreadable. It returns the number
// of expired entries removed.
func (p *PersistentCache) Reconcile(ctx context.Context, now int64) (int, error) {
	keys, err := p.StoredKeys(ctx)
	if err != nil {
		return 0, err
	}
	index, err := p.Index(ctx)
	if err != nil {
		return 0, err
	}

	stored := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		stored[k] = struct{}{}
	}

	changed := false
	for k := range index {
		if _, ok := stored[k]; !ok {
			delete(index, k)
			changed = true
		}
	}

	removed := 0
	var result *multierror.Error
	for _, k := range keys {
		if _, ok := index[k]; ok {
			continue
		}

		entry, found, loadErr := p.Load(ctx, k)
		if loadErr == nil && !found {
			continue
		}
		if loadErr != nil || entry.Expired(now) {
			if err := p.store.RemoveItem(ctx, p.storageKey(k)); err != nil {
				result = multierror.Append(result, err)
				continue
			}
			if loadErr == nil {
				removed++
			}
			continue
		}

		data, err := json.Marshal(entry)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		index[k] = IndexRecord{
			ExpiresAt: entry.ExpiresAt,
			UpdatedAt: entry.CreatedAt,
			Size:      int64(len(data)),
		}
		changed = true
	}

	if changed {
		if err := p.writeIndex(ctx, index); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return removed, fmt.Errorf("%w: reconcile: %v", ErrStorageFailure, err)
	}
	return removed, nil
}

func (p *PersistentCache) updateIndex(ctx context.Context, mutate func(map[string]IndexRecord) bool) error {
	index, err := p.Index(ctx)
	if err != nil {
		return err
	}
	if !mutate(index) {
		return nil
	}
	return p.writeIndex(ctx, index)
}

func (p *PersistentCache) writeIndex(ctx context.Context, index map[string]IndexRecord) error {
	if len(index) == 0 {
		if err := p.store.RemoveItem(ctx, p.indexKey); err != nil {
			return fmt.Errorf("%w: remove index: %v", ErrStorageFailure, err)
		}
		return nil
	}

	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("%w: encode index: %v", ErrStorageFailure, err)
	}
	if err := p.store.SetItem(ctx, p.indexKey, string(data)); err != nil {
		return fmt.Errorf("%w: set index: %v", ErrStorageFailure, err)
	}
	return nil
}
