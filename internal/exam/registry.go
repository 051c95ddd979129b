package exam

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry holds the sessions of all connected browsers, keyed by cookie id.
// Sessions idle for longer than the TTL are dropped on the next access, except
// those holding a started attempt that has not been submitted yet.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewRegistry creates an empty registry. A zero ttl keeps sessions forever.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{sessions: make(map[string]*Session), ttl: ttl}
}

// Create registers a fresh session under a random id.
func (r *Registry) Create(now time.Time) *Session {
	s := NewSession(uuid.NewString(), now)
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s
}

// Get returns the live session for id, or nil if unknown or expired.
func (r *Registry) Get(id string, now time.Time) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	if r.ttl > 0 && now.Sub(s.idleSince()) > r.ttl && !s.holdsAttempt() {
		delete(r.sessions, id)
		return nil
	}
	s.touch(now)
	return s
}

// Cleanup removes sessions idle longer than the TTL and returns them. A session
// whose attempt is still on the clock is kept; one whose time ran out is
// removed and returned so the caller can submit it.
func (r *Registry) Cleanup(now time.Time) []*Session {
	if r.ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []*Session
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) <= r.ttl || s.timerRunning(now) {
			continue
		}
		delete(r.sessions, id)
		removed = append(removed, s)
	}
	return removed
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
