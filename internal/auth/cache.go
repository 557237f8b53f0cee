package auth

import (
	"sync"
	"time"

	"github.com/dreamware/flashbid/internal/auction"
)

type cacheEntry struct {
	principal auction.Principal
	expiresAt time.Time
}

// Cache is the bounded, process-local token cache. Lookups never perform
// I/O and never fail; a stale entry within its TTL is acceptable by
// contract.
// Thread-safe: all methods are safe for concurrent access.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	maxEntries int
	ttl        time.Duration
	clock      func() time.Time
}

// NewCache creates a token cache holding at most maxEntries principals,
// each fresh for ttl after insertion.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]cacheEntry, maxEntries),
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      time.Now,
	}
}

// SetClock overrides the time source.
// This is useful for testing TTL behavior without sleeping.
func (c *Cache) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// Get returns the cached principal for the token. An expired entry is
// evicted in place and reported as a miss.
func (c *Cache) Get(token string) (auction.Principal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[token]
	if !ok {
		return auction.Principal{}, false
	}
	if !c.clock().Before(e.expiresAt) {
		delete(c.entries, token)
		return auction.Principal{}, false
	}
	return e.principal, true
}

// Set caches the principal under the token. When the cache is full and
// the token is not already present, the entry with the earliest
// expiration is evicted; with uniform TTLs that entry is also the least
// recently inserted.
func (c *Cache) Set(token string, p auction.Principal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[token]; !exists && len(c.entries) >= c.maxEntries {
		c.evictEarliest()
	}
	c.entries[token] = cacheEntry{principal: p, expiresAt: c.clock().Add(c.ttl)}
}

// evictEarliest removes the entry expiring soonest. Callers must hold mu.
func (c *Cache) evictEarliest() {
	var (
		victim   string
		earliest time.Time
		found    bool
	)
	for token, e := range c.entries {
		if !found || e.expiresAt.Before(earliest) {
			victim = token
			earliest = e.expiresAt
			found = true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}

// Len returns the number of cached entries, counting expired entries
// that have not yet been touched.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
