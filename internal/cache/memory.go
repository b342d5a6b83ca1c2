package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process TTL map. Expired entries are hidden on read
// and removed by Cleanup.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *MemoryCache) Cleanup() int {
	now := c.now()

	c.mu.RLock()
	var expired []string
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			expired = append(expired, k)
		}
	}
	c.mu.RUnlock()

	if len(expired) == 0 {
		return 0
	}

	removed := 0
	c.mu.Lock()
	for _, k := range expired {
		// re-check: the key may have been refreshed since the scan
		if e, ok := c.entries[k]; ok && !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()
	return removed
}

// Run calls Cleanup every interval until ctx is done.
func (c *MemoryCache) Run(ctx context.Context, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Cleanup(); n > 0 && log != nil {
				log.Debug("cache cleanup", zap.Int("removed", n))
			}
		}
	}
}
