package types

import "errors"

// Boundary validation errors. These are resolved at the transport layer; the
// hub never observes empty input.
var (
	ErrEmptyUsername   = errors.New("username must not be empty")
	ErrUsernameTooLong = errors.New("username must be at most 50 characters")
	ErrEmptyMessage    = errors.New("message text must not be empty")
)
