package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/harun/tagrelay/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *MemoryStore {
	reg, err := registry.New([]registry.Topic{
		{Name: "Rock", ThreadID: 8},
		{Name: "Jazz", ThreadID: 10},
		{Name: "Pop", ThreadID: 12},
	}, registry.Topic{Name: "All", ThreadID: 2})
	require.NoError(t, err)
	return NewMemoryStore(reg)
}

func TestMemoryStore_PutAndGet(t *testing.T) {
	store := setupTestStore(t)

	_, ok := store.Get(1)
	assert.False(t, ok)

	created := store.Put(1, -100, AudioRef{FileID: "file-1", Title: "Song", Performer: "Band"})
	assert.Empty(t, created.Selected)

	sess, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, int64(1), sess.UserID)
	assert.Equal(t, int64(-100), sess.ChatID)
	assert.Equal(t, "file-1", sess.Audio.FileID)
	assert.Equal(t, "Song", sess.Audio.Title)
	assert.False(t, sess.CreatedAt.IsZero())
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_PutResetsSelection(t *testing.T) {
	store := setupTestStore(t)

	store.Put(1, -100, AudioRef{FileID: "first"})
	_, err := store.Toggle(1, "Jazz")
	require.NoError(t, err)
	_, err = store.Toggle(1, "Pop")
	require.NoError(t, err)

	store.Put(1, -100, AudioRef{FileID: "second"})

	sess, ok := store.Get(1)
	require.True(t, ok)
	assert.Empty(t, sess.Selected)
	assert.Equal(t, "second", sess.Audio.FileID)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_ToggleParity(t *testing.T) {
	for n := 0; n <= 6; n++ {
		t.Run(fmt.Sprintf("%d toggles", n), func(t *testing.T) {
			store := setupTestStore(t)
			store.Put(1, -100, AudioRef{FileID: "f"})

			for i := 0; i < n; i++ {
				_, err := store.Toggle(1, "Jazz")
				require.NoError(t, err)
			}

			sess, _ := store.Get(1)
			assert.Equal(t, n%2 == 1, sess.IsSelected("Jazz"))
		})
	}
}

func TestMemoryStore_ToggleErrors(t *testing.T) {
	store := setupTestStore(t)

	t.Run("no session", func(t *testing.T) {
		_, err := store.Toggle(99, "Jazz")
		assert.True(t, errors.Is(err, ErrNoActiveSession))
	})

	t.Run("unknown tag", func(t *testing.T) {
		store.Put(1, -100, AudioRef{FileID: "f"})
		_, err := store.Toggle(1, "Polka")
		assert.True(t, errors.Is(err, ErrUnknownTag))
		assert.True(t, errors.Is(err, registry.ErrUnknownTag))

		sess, _ := store.Get(1)
		assert.Empty(t, sess.Selected)
	})
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := setupTestStore(t)
	store.Put(1, -100, AudioRef{FileID: "f"})

	sess, _ := store.Get(1)
	sess.Selected["Rock"] = struct{}{}

	fresh, _ := store.Get(1)
	assert.False(t, fresh.IsSelected("Rock"))
}

func TestMemoryStore_Remove(t *testing.T) {
	store := setupTestStore(t)

	// Removing a missing session is a no-op
	store.Remove(7)

	store.Put(7, -100, AudioRef{FileID: "f"})
	store.Remove(7)
	_, ok := store.Get(7)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestSession_SelectedIn(t *testing.T) {
	sess := Session{Selected: map[string]struct{}{"Pop": {}, "Rock": {}}}
	assert.Equal(t, []string{"Rock", "Pop"}, sess.SelectedIn([]string{"Rock", "Jazz", "Pop"}))
}

func TestMemoryStore_ConcurrentUsers(t *testing.T) {
	store := setupTestStore(t)

	var wg sync.WaitGroup
	for u := int64(1); u <= 20; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			store.Put(userID, -100, AudioRef{FileID: fmt.Sprintf("f-%d", userID)})
			for i := 0; i < 3; i++ {
				_, _ = store.Toggle(userID, "Rock")
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 20, store.Len())
	for u := int64(1); u <= 20; u++ {
		sess, ok := store.Get(u)
		require.True(t, ok)
		assert.True(t, sess.IsSelected("Rock"))
		assert.Equal(t, fmt.Sprintf("f-%d", u), sess.Audio.FileID)
	}
}

func TestMemoryStore_OldestAge(t *testing.T) {
	reg, err := registry.New([]registry.Topic{{Name: "Rock", ThreadID: 8}}, registry.Topic{Name: "All", ThreadID: 2})
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	store := NewMemoryStoreWithClock(reg, clock)
	assert.Zero(t, store.OldestAge())

	created := store.Put(1, -100, AudioRef{FileID: "a"})
	assert.Equal(t, clock.Now(), created.CreatedAt)

	clock.Advance(3 * time.Minute)
	store.Put(2, -100, AudioRef{FileID: "b"})
	clock.Advance(time.Minute)

	assert.Equal(t, 4*time.Minute, store.OldestAge())

	// Replacing a session restarts its age
	store.Put(1, -100, AudioRef{FileID: "c"})
	assert.Equal(t, time.Minute, store.OldestAge())
}
