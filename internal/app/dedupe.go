/**
 * @description
 * TTL cache for webhook event IDs. Billing providers redeliver events, so the
 * webhook handler consults this cache before re-running lifecycle transitions.
 * A background goroutine evicts expired entries instead of cleaning inline on
 * the request path.
 */
package app

import (
	"sync"
	"time"
)

// SeenCache remembers string keys for a TTL. Safe for concurrent use.
type SeenCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	done    chan struct{}
	once    sync.Once
}

// NewSeenCache creates a cache whose entries expire after ttl and starts the
// eviction loop, which wakes every sweepInterval.
func NewSeenCache(ttl, sweepInterval time.Duration) *SeenCache {
	c := &SeenCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	go c.evictLoop(sweepInterval)
	return c
}

// Seen reports whether key was recorded within the TTL, recording it if not.
// The first caller for a given key gets false; concurrent callers race on
// the lock, so exactly one of them wins.
func (c *SeenCache) Seen(key string) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if at, ok := c.entries[key]; ok && now.Sub(at) < c.ttl {
		return true
	}
	c.entries[key] = now
	return false
}

// Forget drops a key so a later Seen call records it again. Callers use this
// when processing fails after the key was claimed and a redelivery should be
// allowed through.
func (c *SeenCache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Close stops the eviction loop. Idempotent.
func (c *SeenCache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *SeenCache) evictLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.evict(now)
		}
	}
}

func (c *SeenCache) evict(now time.Time) {
	cutoff := now.Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, at := range c.entries {
		if at.Before(cutoff) {
			delete(c.entries, key)
		}
	}
}
