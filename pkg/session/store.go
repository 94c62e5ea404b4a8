package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/harun/tagrelay/pkg/registry"
)

var (
	// ErrNoActiveSession is returned when a user has no pending upload
	ErrNoActiveSession = errors.New("no active session")

	// ErrUnknownTag is returned when toggling a tag outside the registry
	ErrUnknownTag = registry.ErrUnknownTag
)

// TagSet is the subset of the destination registry the store needs
type TagSet interface {
	Contains(tag string) bool
}

// Store owns all tagging sessions, keyed by user id
type Store interface {
	Put(userID, chatID int64, audio AudioRef) Session
	Get(userID int64) (Session, bool)
	Toggle(userID int64, tag string) (Session, error)
	Remove(userID int64)
	Len() int
}

// MemoryStore keeps sessions in process memory. Safe for concurrent use.
type MemoryStore struct {
	tags     TagSet
	sessions map[int64]*Session
	mu       sync.RWMutex
	clock    clockwork.Clock
}

// NewMemoryStore creates an empty store validating tags against tags
func NewMemoryStore(tags TagSet) *MemoryStore {
	return NewMemoryStoreWithClock(tags, clockwork.NewRealClock())
}

// NewMemoryStoreWithClock creates an empty store stamping sessions with clock
func NewMemoryStoreWithClock(tags TagSet, clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		tags:     tags,
		sessions: make(map[int64]*Session),
		clock:    clock,
	}
}

// Put starts a fresh session with an empty selection, replacing any previous
// session of the user.
func (s *MemoryStore) Put(userID, chatID int64, audio AudioRef) Session {
	sess := &Session{
		UserID:    userID,
		ChatID:    chatID,
		Audio:     audio,
		Selected:  make(map[string]struct{}),
		CreatedAt: s.clock.Now(),
	}

	s.mu.Lock()
	s.sessions[userID] = sess
	s.mu.Unlock()

	return sess.clone()
}

// Get returns a copy of the user's session
func (s *MemoryStore) Get(userID int64) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// Toggle flips membership of tag in the user's selection
func (s *MemoryStore) Toggle(userID int64, tag string) (Session, error) {
	if s.tags != nil && !s.tags.Contains(tag) {
		return Session{}, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, ErrNoActiveSession
	}

	if _, selected := sess.Selected[tag]; selected {
		delete(sess.Selected, tag)
	} else {
		sess.Selected[tag] = struct{}{}
	}

	return sess.clone(), nil
}

// Remove deletes the user's session if any
func (s *MemoryStore) Remove(userID int64) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// OldestAge returns how long the oldest open session has been waiting, zero
// when there is none
func (s *MemoryStore) OldestAge() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest time.Duration
	now := s.clock.Now()
	for _, sess := range s.sessions {
		if age := now.Sub(sess.CreatedAt); age > oldest {
			oldest = age
		}
	}
	return oldest
}

// Len returns the number of active sessions
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
