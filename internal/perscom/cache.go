package perscom

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a fetched resource family is served from the
// cache before the next read goes back to PERSCOM.
const DefaultCacheTTL = 5 * time.Minute

// Clock is the time source for cache validity. Tests swap in a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Entry is one cached resource family: the flattened JSON array of its
// records and the moment it was fetched. Entries are replaced whole.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Cache stores resource families by key. Validity (TTL) is decided by the
// client, not the store, so every backend applies the same rule.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	// InvalidateMatching removes every key containing substr and returns
	// how many were removed.
	InvalidateMatching(ctx context.Context, substr string) (int, error)
	Flush(ctx context.Context) error
}

// MemoryCache is a process-local Cache guarded by a RWMutex.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	return e, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) InvalidateMatching(_ context.Context, substr string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.entries {
		if strings.Contains(k, substr) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryCache) Flush(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.mu.Unlock()
	return nil
}

// Keys returns the cached keys in sorted order.
func (m *MemoryCache) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// cacheKey is the family name, suffixed with the sorted include list when
// related resources were joined, e.g. "users?include=rank,unit". Invalidation
// matches on the family substring so both variants are dropped together.
func cacheKey(family string, includes []string) string {
	if len(includes) == 0 {
		return family
	}
	inc := append([]string(nil), includes...)
	sort.Strings(inc)
	return family + "?include=" + strings.Join(inc, ",")
}

// IsCacheValid reports whether key holds an entry younger than the TTL.
func (c *Client) IsCacheValid(ctx context.Context, key string) bool {
	_, ok := c.validEntry(ctx, key)
	return ok
}

func (c *Client) validEntry(ctx context.Context, key string) (Entry, bool) {
	e, ok, err := c.cache.Get(ctx, key)
	if err != nil || !ok {
		return Entry{}, false
	}
	if c.clock.Now().Sub(e.Timestamp) >= c.ttl {
		return Entry{}, false
	}
	return e, true
}

// Invalidate drops every cached family whose key contains family. An empty
// family flushes the whole cache.
func (c *Client) Invalidate(ctx context.Context, family string) (int, error) {
	if family == "" {
		return 0, c.cache.Flush(ctx)
	}
	return c.cache.InvalidateMatching(ctx, family)
}
