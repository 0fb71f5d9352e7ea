// Package cache provides a short-TTL response cache in front of read-only
// controller calls, absorbing repeated polling from tool callers. Entries
// are keyed by resource path plus query signature; mutating operations
// evict the whole resource family by key prefix so a caller never observes
// stale data for a resource it just changed through this process.
package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// TTLs by resource volatility. Live statistics expire in seconds,
// mostly-static configuration in minutes.
const (
	TTLSites    = 5 * time.Minute
	TTLNetworks = 5 * time.Minute
	TTLFirewall = 5 * time.Minute
	TTLBackups  = time.Minute
	TTLDevices  = time.Minute
	TTLClients  = 30 * time.Second
)

// Store is the storage backend behind a Cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// Key builds a cache key from a resource path and its query parameters.
// Parameters are sorted so equivalent queries share an entry.
func Key(path string, query map[string]string) string {
	if len(query) == 0 {
		return path
	}
	parts := make([]string, 0, len(query))
	for k, v := range query {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return path + "?" + strings.Join(parts, "&")
}

// FetchFunc produces the value on a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Cache coordinates lookups against a Store. It is safe for concurrent
// use; each test can instantiate its own.
type Cache struct {
	store   Store
	enabled bool
}

// New returns a cache backed by store. A nil store disables caching:
// every GetOrFetch goes to the fetcher.
func New(store Store) *Cache {
	return &Cache{store: store, enabled: store != nil}
}

// GetOrFetch returns the cached value for key if present and unexpired,
// otherwise invokes fetch, stores the result under ttl, and returns it.
// Store failures degrade to a direct fetch rather than failing the call.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) ([]byte, error) {
	if !c.enabled {
		return fetch(ctx)
	}
	if val, ok, err := c.store.Get(ctx, key); err == nil && ok {
		return val, nil
	}
	val, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	// Best effort; a failed write only costs the next caller a fetch.
	_ = c.store.Set(ctx, key, val, ttl)
	return val, nil
}

// Invalidate evicts every entry whose key starts with prefix. Called by
// mutating operations on the matching resource family.
func (c *Cache) Invalidate(ctx context.Context, prefix string) error {
	if !c.enabled {
		return nil
	}
	return c.store.DeletePrefix(ctx, prefix)
}

// Close releases the backing store.
func (c *Cache) Close() error {
	if !c.enabled {
		return nil
	}
	return c.store.Close()
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store. Expiry is passive: entries are
// checked on lookup and swept opportunistically on writes.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.now().After(ent.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return ent.value, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	if len(m.entries)%64 == 0 {
		m.sweepLocked()
	}
	return nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Len reports the current entry count, expired entries included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) sweepLocked() {
	now := m.now()
	for key, ent := range m.entries {
		if now.After(ent.expiresAt) {
			delete(m.entries, key)
		}
	}
}
