// Package cache wraps go-cache with typed keys and values plus an
// eviction hook. The watchdog uses it to turn TTL expiry into idle
// session kicks.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/iagocq/amicus/internal/log"
)

// Store is a TTL key/value store with eviction notification.
type Store[K ~string, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Touch(key K, ttl time.Duration) bool
	Delete(keys ...K)
	Flush()
	Len() int
	OnEvicted(fn func(key K, value V))
}

// Memory is the go-cache backed Store.
type Memory[K ~string, V any] struct {
	useCase string
	cache   *gocache.Cache
}

// NewMemory creates a store. cleanupInterval bounds how late after its TTL
// an entry is evicted; pass 0 to disable the background sweeper entirely.
func NewMemory[K ~string, V any](useCase string, defaultTTL, cleanupInterval time.Duration) *Memory[K, V] {
	return &Memory[K, V]{
		useCase: useCase,
		cache:   gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves an item from the cache by its key.
func (m *Memory[K, V]) Get(key K) (V, bool) {
	var zero V

	value, found := m.cache.Get(string(key))
	if !found {
		return zero, false
	}
	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value",
			"useCase", m.useCase, "key", string(key))
		return zero, false
	}
	return v, true
}

// Set stores value under key with the given TTL.
func (m *Memory[K, V]) Set(key K, value V, ttl time.Duration) {
	m.cache.Set(string(key), value, ttl)
}

// Touch re-arms the key's TTL, keeping its value. Returns false when the
// key is not present.
func (m *Memory[K, V]) Touch(key K, ttl time.Duration) bool {
	value, found := m.cache.Get(string(key))
	if !found {
		return false
	}
	m.cache.Set(string(key), value, ttl)
	return true
}

// Delete removes the given keys. Deleting fires the eviction hook too.
func (m *Memory[K, V]) Delete(keys ...K) {
	for _, key := range keys {
		m.cache.Delete(string(key))
	}
}

// Flush drops every entry.
func (m *Memory[K, V]) Flush() {
	m.cache.Flush()
}

// Len returns the number of entries, expired-but-not-yet-swept included.
func (m *Memory[K, V]) Len() int {
	return m.cache.ItemCount()
}

// OnEvicted registers fn for every eviction, TTL expiry and explicit
// Delete alike. Callers that only care about expiry must tolerate the
// latter.
func (m *Memory[K, V]) OnEvicted(fn func(key K, value V)) {
	m.cache.OnEvicted(func(key string, value interface{}) {
		v, ok := value.(V)
		if !ok {
			return
		}
		fn(K(key), v)
	})
}
