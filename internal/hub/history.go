package hub

import (
	"sync"

	"chathub/pkg/types"
)

// DefaultHistoryLimit is the number of messages retained for replay to
// newly connected clients.
const DefaultHistoryLimit = 50

// History retains the most recent user messages in insertion order. When an
// append would exceed the limit, the oldest entry is evicted first. System
// announcements are broadcast but never retained.
type History struct {
	mu      sync.RWMutex
	limit   int
	entries []types.Message
}

// NewHistory creates a history bounded to limit entries. Non-positive limits
// fall back to DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{
		limit:   limit,
		entries: make([]types.Message, 0, limit),
	}
}

// Append adds a message, evicting the oldest entry once the limit is reached.
func (h *History) Append(msg types.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) == h.limit {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, msg)
}

// Snapshot returns a copy of the retained messages, oldest first.
func (h *History) Snapshot() []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snapshot := make([]types.Message, len(h.entries))
	copy(snapshot, h.entries)
	return snapshot
}

// Len returns the number of retained messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Limit returns the configured retention bound.
func (h *History) Limit() int {
	return h.limit
}
