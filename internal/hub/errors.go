package hub

import "errors"

// Hub lifecycle and enqueue errors.
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrEventChannelFull  = errors.New("hub event channel is full")
	ErrNilConnection     = errors.New("connection cannot be nil")
)

// Registry errors.
var (
	ErrNilSession    = errors.New("session cannot be nil")
	ErrSessionExists = errors.New("session is already registered")
	ErrAlreadyJoined = errors.New("session has already joined")
	ErrUsernameTaken = errors.New("username is already taken")
)
