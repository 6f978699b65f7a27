package app

import (
	"maps"
	"sync"
	"time"
)

// DefaultHealthCacheTTL bounds how often /api/health probes the backends
const DefaultHealthCacheTTL = 5 * time.Second

// HealthCache keeps the last dependency probe for a TTL so frequent health
// requests do not ping the database and Redis each time.
type HealthCache struct {
	mu        sync.RWMutex
	states    map[string]string
	checkedAt time.Time
	ttl       time.Duration
}

// NewHealthCache creates a new HealthCache with the specified TTL.
// A TTL of 0 disables caching.
func NewHealthCache(ttl time.Duration) *HealthCache {
	return &HealthCache{ttl: ttl}
}

// Get returns a copy of the cached states and whether they are still valid
func (c *HealthCache) Get() (map[string]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.checkedAt.IsZero() || time.Since(c.checkedAt) >= c.ttl {
		return nil, false
	}
	return maps.Clone(c.states), true
}

// Set stores a fresh probe result
func (c *HealthCache) Set(states map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = maps.Clone(states)
	c.checkedAt = time.Now()
}

// Invalidate clears the cache, forcing the next check to probe.
func (c *HealthCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkedAt = time.Time{}
}

// TTL returns the cache's time-to-live duration.
func (c *HealthCache) TTL() time.Duration {
	return c.ttl
}
