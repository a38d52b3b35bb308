package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrStorageFailure wraps every error raised by a Store.
var ErrStorageFailure = errors.New("storage failure")

// Store is the host key/value storage backing the persistent tier.
// GetItem reports found=false with a nil error for a missing key.
type Store interface {
	GetItem(ctx context.Context, key string) (value string, found bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// MapStore is an in-process Store.
type MapStore struct {
	mutex sync.RWMutex
	items map[string]string
}

func NewMapStore() *MapStore {
	return &MapStore{items: make(map[string]string)}
}

func (s *MapStore) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, ok := s.items[key]
	return value, ok, nil
}

func (s *MapStore) SetItem(_ context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.items[key] = value
	return nil
}

func (s *MapStore) RemoveItem(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.items, key)
	return nil
}

func (s *MapStore) Keys(_ context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := make([]string, 0, len(s.items))
	for key := range s.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MapStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.items)
}
