package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
)

// Store keeps sessions in memory. Nothing is persisted.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (st *Store) Create() *Session {
	s := New(uuid.NewString())

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("session", id)
	}
	return s, nil
}

// Delete resets the session (aborting any run) and forgets it.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if ok {
		s.Reset()
		s.closeSubscribers()
	}
	return ok
}

// Prune drops sessions idle for longer than maxIdle and returns how many went.
func (st *Store) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	st.mu.RLock()
	var stale []string
	for id, s := range st.sessions {
		snap := s.Snapshot()
		if snap.State != StateLoading && snap.UpdatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	st.mu.RUnlock()

	for _, id := range stale {
		st.Delete(id)
	}
	return len(stale)
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
