package router

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in a map. Sessions live until pruned or
// reset; history survives restarts through the HistoryStore, not here.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[SessionKey]*Session
	now      func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[SessionKey]*Session),
		now:      time.Now,
	}
}

func (s *MemoryStore) GetOrCreate(key SessionKey) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		now := s.now()
		sess = &Session{ID: uuid.NewString(), Key: key, CreatedAt: now, LastActiveAt: now}
		s.sessions[key] = sess
	}
	return sess, !ok
}

func (s *MemoryStore) Get(key SessionKey) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[key]
}

func (s *MemoryStore) Touch(key SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.sessions[key]; sess != nil {
		sess.LastActiveAt = s.now()
	}
}

func (s *MemoryStore) Delete(key SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// Prune drops sessions idle for longer than maxIdle, except those for
// which skip returns true.
func (s *MemoryStore) Prune(maxIdle time.Duration, skip func(SessionKey) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	before := len(s.sessions)
	maps.DeleteFunc(s.sessions, func(key SessionKey, sess *Session) bool {
		return sess.LastActiveAt.Before(cutoff) && (skip == nil || !skip(key))
	})
	return before - len(s.sessions)
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Keys returns the session keys ordered by their string form.
func (s *MemoryStore) Keys() []SessionKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.SortedFunc(maps.Keys(s.sessions), func(a, b SessionKey) int {
		return cmp.Compare(a.String(), b.String())
	})
}

var _ SessionStore = (*MemoryStore)(nil)
