package interfaces

import "chathub/pkg/types"

// Connection is the outbound path to one client. The hub broadcasts through
// this interface only; transport details stay in internal/websocket.
type Connection interface {
	// Send queues an event for delivery without blocking. A full outbound
	// buffer or a closed connection returns an error; the caller treats
	// either as a skipped recipient, never a failed operation.
	Send(event *types.Event) error

	// Close closes the connection and releases its resources. Safe to call
	// more than once.
	Close() error

	// RemoteAddr returns the peer address for logging.
	RemoteAddr() string
}
