// Package cache provides the process-wide TTL read cache with tag-based
// invalidation: every entry carries the entity names it depends on, and any
// write to an entity drops every entry tagged with it.
package cache

import (
	"sync"
	"time"
)

// Cache is a TTL cache with per-entry tags.
type Cache struct {
	mu    sync.RWMutex
	items map[string]item
	ttl   time.Duration

	stop chan struct{}
	once sync.Once

	now func() time.Time // overridable in tests
}

type item struct {
	value     interface{}
	tags      []string
	expiresAt time.Time
}

// New creates a cache with the given default TTL and starts the periodic
// sweep of expired entries.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		items: make(map[string]item),
		ttl:   ttl,
		stop:  make(chan struct{}),
		now:   time.Now,
	}
	go c.cleanupExpired()
	return c
}

// Get retrieves a live value.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, exists := c.items[key]
	if !exists || c.now().After(it.expiresAt) {
		return nil, false
	}
	return it.value, true
}

// Set stores a value with the default TTL and no tags. Used for query
// results, which expire by TTL only.
func (c *Cache) Set(key string, value interface{}) {
	c.SetTagged(key, value, nil)
}

// SetTagged stores a value tagged with the entities it was derived from.
func (c *Cache) SetTagged(key string, value interface{}, tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item{
		value:     value,
		tags:      tags,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Delete removes one entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Invalidate drops every entry tagged with the entity. Untagged entries
// (query results) are never touched; they expire by TTL only.
func (c *Cache) Invalidate(entity string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, it := range c.items {
		if tagged(it.tags, entity) {
			delete(c.items, key)
		}
	}
}

func tagged(tags []string, entity string) bool {
	for _, tag := range tags {
		if tag == entity {
			return true
		}
	}
	return false
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]item)
}

// Len counts live entries, for metrics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupExpired() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for key, it := range c.items {
				if now.After(it.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
