package commandqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupCache_Shutdown(t *testing.T) {
	cache := newDedupCache(context.Background(), 50*time.Millisecond)
	cache.Stop()

	select {
	case <-cache.done:
		// ok
	case <-time.After(1 * time.Second):
		t.Fatalf("dedup cache cleanup did not stop within timeout")
	}
}

func TestDedupCache_Add(t *testing.T) {
	cache := newDedupCache(context.Background(), 20*time.Millisecond)
	defer cache.Stop()

	assert.True(t, cache.Add("a"))
	assert.False(t, cache.Add("a"))
	assert.True(t, cache.Add("b"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, cache.Add("a"), "expired key is accepted again")
}

func TestDedupCache_CleanupEvicts(t *testing.T) {
	cache := newDedupCache(context.Background(), 10*time.Millisecond)
	defer cache.Stop()

	cache.Add("a")
	assert.Eventually(t, func() bool { return cache.Size() == 0 }, time.Second, 5*time.Millisecond)
}
