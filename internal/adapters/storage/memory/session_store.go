package memory

import (
	"errors"
	"sync"

	"github.com/PabloGalante/carbon-advisor/internal/app/advisor"
	"github.com/PabloGalante/carbon-advisor/internal/domain"
)

// SessionStore keeps live advisor sessions in process memory. Nothing
// outlives the process.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*advisor.Session
	max      int
}

// ErrStoreFull is returned by Put when the store is at capacity.
var ErrStoreFull = errors.New("session store full")

// NewSessionStore creates a store holding at most max sessions (0 = no limit).
func NewSessionStore(max int) *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionID]*advisor.Session),
		max:      max,
	}
}

func (s *SessionStore) Put(session *advisor.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID()]; exists {
		return errors.New("session already exists")
	}
	if s.max > 0 && len(s.sessions) >= s.max {
		return ErrStoreFull
	}

	s.sessions[session.ID()] = session
	return nil
}

func (s *SessionStore) Get(id domain.SessionID) (*advisor.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, advisor.ErrSessionNotFound
	}

	return sess, nil
}

func (s *SessionStore) Delete(id domain.SessionID) (*advisor.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, advisor.ErrSessionNotFound
	}
	delete(s.sessions, id)

	return sess, nil
}

// Drain removes and returns every session.
func (s *SessionStore) Drain() []*advisor.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*advisor.Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		out = append(out, sess)
		delete(s.sessions, id)
	}
	return out
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
