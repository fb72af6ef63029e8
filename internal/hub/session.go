package hub

import (
	"sync"

	"chathub/pkg/interfaces"
)

// Session is the hub-side state for one live connection. A session starts
// unjoined, transitions to joined at most once, and is destroyed when the
// connection closes. The username, once set, never changes.
type Session struct {
	id   string
	conn interfaces.Connection

	mu       sync.RWMutex
	username string
	joined   bool
}

func newSession(id string, conn interfaces.Connection) *Session {
	return &Session{id: id, conn: conn}
}

// ID returns the opaque session identifier assigned at connect time.
func (s *Session) ID() string {
	return s.id
}

// Username returns the bound display name, or "" while unjoined.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// Joined reports whether the session has successfully joined.
func (s *Session) Joined() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joined
}

// bind is called by the registry, under its lock, after the uniqueness check
// has passed.
func (s *Session) bind(username string) {
	s.mu.Lock()
	s.username = username
	s.joined = true
	s.mu.Unlock()
}
