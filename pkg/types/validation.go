package types

import (
	"strings"
)

// MaxUsernameLength bounds display names to something reasonable for the
// roster UI; the hub itself only cares about non-empty and uniqueness.
const MaxUsernameLength = 50

// NormalizeUsername trims surrounding whitespace from a requested display
// name. Uniqueness checks operate on the normalized form.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// ValidateUsername checks a requested display name at the boundary. Empty or
// whitespace-only names never reach the hub.
func ValidateUsername(username string) error {
	normalized := NormalizeUsername(username)
	if normalized == "" {
		return ErrEmptyUsername
	}
	if len(normalized) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	return nil
}

// ValidateMessageText checks message text at the boundary. The text itself is
// forwarded as given; only the trimmed form must be non-empty.
func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return nil
}
