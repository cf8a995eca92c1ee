// Package cache provides an in-memory result cache for read queries.
// It is a pure performance optimization: entries vanish on restart and
// nothing downstream may depend on a hit for correctness.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/dbwarden/warden/internal/core/port"
)

type entry struct {
	rows      []map[string]any
	createdAt time.Time
}

// QueryCache memoizes query results keyed by a fingerprint of the exact
// statement text plus an optional namespace. Statements differing only in
// whitespace are distinct keys: normalization is the validator's business,
// not the cache's.
//
// Eviction is approximate LRU: when the cache is full, Set removes the
// single entry with the oldest last-access timestamp. All operations are
// safe for concurrent use.
type QueryCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	lastAccess map[string]time.Time
	capacity   int
	ttl        time.Duration

	now func() time.Time // overridable in tests
}

// New creates a QueryCache holding at most capacity entries, each fresh for
// ttl after insertion.
func New(capacity int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		entries:    make(map[string]*entry),
		lastAccess: make(map[string]time.Time),
		capacity:   capacity,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Fingerprint derives the cache key for a statement scoped to a namespace.
// The hash covers the exact statement text; no normalization is applied.
func Fingerprint(sql, namespace string) string {
	h := sha256.New()
	h.Write([]byte(sql))
	h.Write([]byte{0})
	h.Write([]byte(namespace))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached rows for (sql, namespace), or (nil, false)
// on a miss. A stale entry found here is removed as a side effect and
// reported as a miss. A hit refreshes the key's last-access timestamp.
func (c *QueryCache) Get(sql, namespace string) ([]map[string]any, bool) {
	key := Fingerprint(sql, namespace)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.now().Sub(e.createdAt) > c.ttl {
		c.remove(key)
		return nil, false
	}

	c.lastAccess[key] = c.now()
	return copyRows(e.rows), true
}

// Set stores rows for (sql, namespace), evicting the least-recently-accessed
// entry first if the cache is at capacity. An existing entry under the same
// key is replaced with a fresh creation timestamp.
func (c *QueryCache) Set(sql string, rows []map[string]any, namespace string) {
	key := Fingerprint(sql, namespace)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}

	now := c.now()
	c.entries[key] = &entry{rows: copyRows(rows), createdAt: now}
	c.lastAccess[key] = now
}

// Clear drops every entry unconditionally.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.lastAccess = make(map[string]time.Time)
}

// Stats reports the current size, configured limits, and resident keys.
func (c *QueryCache) Stats() port.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return port.CacheStats{
		Size:     len(c.entries),
		Capacity: c.capacity,
		TTL:      c.ttl,
		Keys:     keys,
	}
}

// remove deletes a key from both maps. Callers must hold c.mu.
func (c *QueryCache) remove(key string) {
	delete(c.entries, key)
	delete(c.lastAccess, key)
}

// evictOldest removes the entry with the smallest last-access timestamp.
// Ties break toward the lexicographically smallest key so eviction is
// deterministic regardless of map iteration order. Callers must hold c.mu.
func (c *QueryCache) evictOldest() {
	if len(c.lastAccess) == 0 {
		return
	}
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, at := range c.lastAccess {
		if first || at.Before(oldestAt) || (at.Equal(oldestAt) && k < oldestKey) {
			oldestKey, oldestAt = k, at
			first = false
		}
	}
	c.remove(oldestKey)
}

// copyRows shallow-copies each row map so callers can mutate results (for
// example, column masking) without corrupting the cached payload.
func copyRows(rows []map[string]any) []map[string]any {
	if rows == nil {
		return nil
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = v
		}
		out[i] = m
	}
	return out
}
