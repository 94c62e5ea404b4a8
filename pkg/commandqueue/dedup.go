package commandqueue

import (
	"context"
	"sync"
	"time"
)

// dedupCache remembers keys for a bounded time so redelivered work can be dropped
type dedupCache struct {
	entries map[string]time.Time
	ttl     time.Duration
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// newDedupCache creates a new deduplication cache
func newDedupCache(ctx context.Context, ttl time.Duration) *dedupCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(ctx)
	cache := &dedupCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// Stop ends the cleanup goroutine
func (dc *dedupCache) Stop() {
	dc.cancel()
}

// Add records key and reports whether it was new within the TTL
func (dc *dedupCache) Add(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	now := time.Now()
	if seen, exists := dc.entries[key]; exists && now.Sub(seen) <= dc.ttl {
		return false
	}
	dc.entries[key] = now
	return true
}

// cleanup periodically removes expired entries
func (dc *dedupCache) cleanup() {
	defer close(dc.done)

	interval := dc.ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-dc.ctx.Done():
			return
		case <-ticker.C:
			dc.mu.Lock()
			now := time.Now()
			for key, seen := range dc.entries {
				if now.Sub(seen) > dc.ttl {
					delete(dc.entries, key)
				}
			}
			dc.mu.Unlock()
		}
	}
}

// Size returns the number of entries in the cache
func (dc *dedupCache) Size() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return len(dc.entries)
}
