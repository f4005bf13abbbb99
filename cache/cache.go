// Package cache keeps recent extraction results so a page snapshot posted
// twice is only parsed once.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/use-agent/offersync/models"
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  models.ExtractResponse
	createdAt time.Time
}

// Cache is an in-memory cache of extraction responses. It is safe for
// concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// New creates a Cache holding at most maxEntries responses for ttl each.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Key derives the cache key for one snapshot.
func Key(brand models.Brand, dataKey, url, html string) string {
	h := sha256.New()
	h.Write([]byte(brand))
	h.Write([]byte("|"))
	h.Write([]byte(dataKey))
	h.Write([]byte("|"))
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(html))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached response younger than the TTL.
func (c *Cache) Get(key string) (models.ExtractResponse, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.createdAt) > c.ttl {
		return models.ExtractResponse{}, false
	}
	return e.response, true
}

// Set stores a response. At capacity the oldest entry is evicted.
func (c *Cache) Set(key string, resp models.ExtractResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		var oldest string
		var at time.Time
		for k, e := range c.store {
			if oldest == "" || e.createdAt.Before(at) {
				oldest, at = k, e.createdAt
			}
		}
		delete(c.store, oldest)
	}
	c.store[key] = &entry{response: resp, createdAt: c.now()}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Prune drops expired entries and returns how many were removed.
func (c *Cache) Prune() int {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
			n++
		}
	}
	return n
}

// Run prunes expired entries every interval until ctx ends.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Prune()
		}
	}
}
