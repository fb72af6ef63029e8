package hub

import (
	"sync"
)

// Registry tracks every connected session and the subset that has joined.
// All mutation happens through the hub's event loop; the mutex exists so the
// API layer and tests can take consistent read snapshots.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Session // session ID -> session, all connected
	usernames map[string]*Session // username -> session, joined only
	order     []*Session          // joined sessions in join order
}

// RegistryStats is a read snapshot of registry size for monitoring.
type RegistryStats struct {
	Connected int `json:"connected"`
	Joined    int `json:"joined"`
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		usernames: make(map[string]*Session),
	}
}

// Add registers a newly connected, unjoined session.
func (r *Registry) Add(s *Session) error {
	if s == nil {
		return ErrNilSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID()]; exists {
		return ErrSessionExists
	}
	r.sessions[s.ID()] = s
	return nil
}

// Remove deletes a session and, if it had joined, frees its username and
// roster slot. Idempotent: removing an unknown session reports false.
func (r *Registry) Remove(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[sessionID]
	if !exists {
		return nil, false
	}
	delete(r.sessions, sessionID)

	if s.Joined() {
		delete(r.usernames, s.Username())
		for i, joined := range r.order {
			if joined == s {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	return s, true
}

// Bind transitions a session to joined under the requested username. The
// uniqueness check is case-sensitive exact match; a rejected bind leaves the
// registry unchanged and the session unjoined.
func (r *Registry) Bind(s *Session, username string) error {
	if s == nil {
		return ErrNilSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Joined() {
		return ErrAlreadyJoined
	}
	if _, taken := r.usernames[username]; taken {
		return ErrUsernameTaken
	}

	s.bind(username)
	r.usernames[username] = s
	r.order = append(r.order, s)
	return nil
}

// Roster returns the joined usernames in join order. Join order is the
// documented, stable roster order for the whole system.
func (r *Registry) Roster() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster := make([]string, 0, len(r.order))
	for _, s := range r.order {
		roster = append(roster, s.Username())
	}
	return roster
}

// All returns a snapshot of every connected session, joined or not.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Joined returns a snapshot of joined sessions in join order.
func (r *Registry) Joined() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, len(r.order))
	copy(sessions, r.order)
	return sessions
}

// Stats returns current registry sizes.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RegistryStats{
		Connected: len(r.sessions),
		Joined:    len(r.order),
	}
}
