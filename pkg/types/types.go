package types

import (
	"encoding/json"
)

// Event names exchanged between client and hub. The names are part of the
// wire protocol and must not change without updating the web client.
const (
	// Client -> hub
	EventJoin    = "join"
	EventMessage = "message"
	EventTyping  = "typing"

	// Hub -> client
	EventHistory  = "history"
	EventUserList = "user_list"
	EventError    = "error"
	// EventMessage and EventTyping are reused on the outbound path.
)

// SystemAuthor is the author attached to join/leave announcements.
const SystemAuthor = "System"

// TimestampLayout is the human-readable time-of-day format stamped onto
// every message by the hub.
const TimestampLayout = "3:04:05 PM"

// Message is a single chat message. Immutable once created; the timestamp is
// assigned by the hub at receipt time, never taken from the client.
type Message struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Event is an outbound envelope sent from the hub to a client.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ClientEvent is an inbound envelope read off a client connection. Data is
// kept raw so each event type can decode its own payload shape.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinPayload carries the requested display name for a join event.
type JoinPayload struct {
	Username string `json:"username"`
}

// MessagePayload carries the text of an outgoing chat message.
type MessagePayload struct {
	Text string `json:"text"`
}

// TypingPayload identifies which user is typing.
type TypingPayload struct {
	Username string `json:"username"`
}

// NewHistoryEvent builds the history replay sent once after connect.
func NewHistoryEvent(messages []Message) *Event {
	if messages == nil {
		messages = []Message{}
	}
	return &Event{Event: EventHistory, Data: messages}
}

// NewMessageEvent wraps a chat message for broadcast.
func NewMessageEvent(msg Message) *Event {
	return &Event{Event: EventMessage, Data: msg}
}

// NewUserListEvent wraps the current roster for broadcast.
func NewUserListEvent(usernames []string) *Event {
	if usernames == nil {
		usernames = []string{}
	}
	return &Event{Event: EventUserList, Data: usernames}
}

// NewErrorEvent wraps a human-readable error for the requester only.
func NewErrorEvent(message string) *Event {
	return &Event{Event: EventError, Data: message}
}

// NewTypingEvent wraps a typing notification for relay to other sessions.
func NewTypingEvent(username string) *Event {
	return &Event{Event: EventTyping, Data: TypingPayload{Username: username}}
}
