package main

import (
	"sync"
	"time"
)

// ============================================================================
// Response Cache
// ============================================================================

// ResponseCache is a small in-process TTL cache fronting the heavier read
// endpoints (statistics, forecast comparison). Entries are evicted lazily on
// read and swept on Set.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value   any
	expires time.Time
}

func NewResponseCache() *ResponseCache {
	return &ResponseCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached value when present and unexpired.
func (c *ResponseCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value and opportunistically sweeps expired entries.
func (c *ResponseCache) Set(key string, value any, ttl time.Duration) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{value: value, expires: now.Add(ttl)}
}

// Invalidate drops one key; used after calibration changes since cached
// payloads embed calibrated directions.
func (c *ResponseCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops everything.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
