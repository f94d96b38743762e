package runtime

import (
	"sync"
	"time"

	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

// ModuleCache memoizes a module's successful result by module name plus
// input fingerprint for up to the module's configured cache_ttl (§4.11
// item 4). Shared process-wide within one Constellation instance the same
// way breaker.Registry and limiters.LimiterRegistry are, so repeated
// Execute calls on identical inputs observe the same cached value.
type ModuleCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     value.Value
	expiresAt time.Time
}

// NewModuleCache constructs an empty ModuleCache.
func NewModuleCache() *ModuleCache {
	return &ModuleCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached value for key if present and not yet expired.
func (c *ModuleCache) Get(key string) (value.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return value.Value{}, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return value.Value{}, false
	}
	return e.value, true
}

// Put stores v under key for ttl.
func (c *ModuleCache) Put(key string, v value.Value, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: v, expiresAt: time.Now().Add(ttl)}
}
