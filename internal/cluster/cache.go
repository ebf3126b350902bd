package cluster

import "sync"

// Cache maps document origins to their resolved Detail. Entries are never
// evicted; the cache lives as long as the process that owns it.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Detail
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Detail)}
}

// Get returns the detail stored for origin.
func (c *Cache) Get(origin string) (Detail, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[origin]
	return d, ok
}

// Put stores d for origin, replacing any previous entry.
func (c *Cache) Put(origin string, d Detail) {
	c.mu.Lock()
	c.entries[origin] = d
	c.mu.Unlock()
}

// Len reports the number of cached origins.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
