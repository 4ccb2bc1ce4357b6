package agent

import (
	"sync"
	"time"

	"github.com/ashureev/askhr/internal/llm"
)

// session is one conversation. mu is held for a whole turn so turns within a
// session run in arrival order.
type session struct {
	mu         sync.Mutex
	history    []llm.Message
	armed      bool
	resetNext  bool
	lastActive time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (s *sessionStore) get(id string, now time.Time) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{lastActive: now}
		s.sessions[id] = sess
	}
	return sess
}

func (s *sessionStore) clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sessions)
	s.sessions = make(map[string]*session)
	return n
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// evictIdle drops sessions idle since before cutoff. Sessions in the middle of
// a turn are skipped.
func (s *sessionStore) evictIdle(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		idle := sess.lastActive.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}
