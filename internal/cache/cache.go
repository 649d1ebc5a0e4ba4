package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a concurrency-safe LRU cache with per-entry TTL.
// Expired entries are evicted lazily on read; no background sweeper is
// required for correctness.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*entry
	order    *list.List

	hits   uint64
	misses uint64
}

type entry struct {
	key     string
	value   any
	expires time.Time
	element *list.Element
}

// New creates a cache with the given capacity and default TTL.
// A non-positive capacity falls back to 512 entries; a non-positive TTL
// means entries never expire.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 512
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry, capacity),
		order:    list.New(),
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if !ent.expires.IsZero() && !time.Now().Before(ent.expires) {
		c.removeEntry(ent)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(ent.element)
	c.hits++
	return ent.value, true
}

// Set stores value under key. A non-positive ttl uses the cache default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		ent.value = value
		ent.expires = c.expiry(ttl)
		c.order.MoveToFront(ent.element)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictOldest()
	}

	elem := c.order.PushFront(key)
	c.items[key] = &entry{
		key:     key,
		value:   value,
		expires: c.expiry(ttl),
		element: elem,
	}
}

// Len returns the number of entries currently held, including entries that
// have expired but not yet been evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Purge removes all entries.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry, c.capacity)
	c.order.Init()
}

// Stats returns cumulative hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (c *Cache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	if ent, ok := c.items[elem.Value.(string)]; ok {
		c.removeEntry(ent)
	}
}

func (c *Cache) removeEntry(ent *entry) {
	if ent.element != nil {
		c.order.Remove(ent.element)
	}
	delete(c.items, ent.key)
}
