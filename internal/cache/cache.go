// Package cache provides a bounded LRU map with per-entry TTL.
//
// The cache holds the last known status per monitored key. Capacity is fixed
// at construction: inserting a new key at capacity evicts the
// least-recently-used entry, so memory stays bounded no matter how many keys
// pass through. Reads of expired entries behave as misses and evict eagerly.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry is one cached value with its expiry.
type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// Cache is a bounded TTL+LRU map safe for concurrent use.
//
// A single mutex guards the map and recency list; key counts are moderate so
// contention on one lock is acceptable. Construct with [New].
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	entries  map[string]*list.Element

	now func() time.Time
}

// New creates a cache holding at most capacity entries.
// A capacity below 1 is raised to 1.
func New[V any](capacity int) *Cache[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[V]{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// Get returns the live value for key and marks it most recently used.
//
// An expired entry behaves as a miss and is evicted on the spot.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	ent := elem.Value.(*entry[V])
	if !c.now().Before(ent.expiresAt) {
		c.removeLocked(elem, ent.key)
		return zero, false
	}

	c.order.MoveToFront(elem)
	return ent.value, true
}

// Put stores value under key with the given TTL.
//
// An existing key is updated in place and marked most recently used. A new
// key at capacity evicts the least-recently-used entry first.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	expiresAt := c.now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.removeLocked(oldest, oldest.Value.(*entry[V]).key)
		}
	}

	elem := c.order.PushFront(&entry[V]{key: key, value: value, expiresAt: expiresAt})
	c.entries[key] = elem
}

// Remove evicts key if present.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem, key)
	}
}

// Len returns the number of entries currently held, including any that
// have expired but not yet been touched.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// removeLocked detaches an element. Caller must hold c.mu.
func (c *Cache[V]) removeLocked(elem *list.Element, key string) {
	c.order.Remove(elem)
	delete(c.entries, key)
}
