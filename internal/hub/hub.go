// Package hub owns all server-side chat state: the session registry, the
// bounded message history, and event fan-out to connected clients. Every
// state transition funnels through a single event loop, so the duplicate
// username check, history eviction, and broadcast snapshots are serialized
// system-wide without a global lock around handlers.
package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chathub/pkg/interfaces"
	"chathub/pkg/types"
)

const eventChannelBuffer = 1024

type eventKind int

const (
	connectEvent eventKind = iota
	joinEvent
	messageEvent
	typingEvent
	disconnectEvent
)

// event is one unit of work for the hub loop. A single channel (rather than
// one channel per kind) keeps each session's events in arrival order.
type event struct {
	kind     eventKind
	session  *Session
	username string
	text     string
}

// Stats is a read snapshot of hub state for the API layer.
type Stats struct {
	Connected   int `json:"connected"`
	Joined      int `json:"joined"`
	HistorySize int `json:"history_size"`
}

// Hub is the sole authority over the registry, history, and broadcast.
type Hub struct {
	events          chan event
	shutdownChannel chan struct{}

	registry *Registry
	history  *History
	logger   *zap.Logger

	// now is the hub clock; overridable in tests.
	now func() time.Time

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub retaining at most historyLimit messages.
func NewHub(historyLimit int, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		events:          make(chan event, eventChannelBuffer),
		shutdownChannel: make(chan struct{}),
		registry:        NewRegistry(),
		history:         NewHistory(historyLimit),
		logger:          logger,
		now:             time.Now,
	}
}

// Start begins hub processing. The event loop runs until Stop is called or
// the context is cancelled.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	h.logger.Info("starting chat hub", zap.Int("history_limit", h.history.Limit()))
	go h.run(ctx)
	return nil
}

// Stop shuts down the hub. Pending events in the channel are discarded.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdownChannel:
		// Already closed.
	default:
		close(h.shutdownChannel)
	}
	return nil
}

// Connect registers a new connection as an unjoined session and queues the
// history replay for it. The returned session is the caller's handle for all
// subsequent operations on this connection.
func (h *Hub) Connect(conn interfaces.Connection) (*Session, error) {
	if conn == nil {
		return nil, ErrNilConnection
	}
	s := newSession(uuid.New().String(), conn)
	if err := h.enqueue(event{kind: connectEvent, session: s}); err != nil {
		return nil, err
	}
	return s, nil
}

// Join requests the given display name for the session. The outcome is
// delivered over the session's connection: an error event on rejection, a
// System announcement plus roster update on success.
func (h *Hub) Join(s *Session, username string) error {
	if s == nil {
		return ErrNilSession
	}
	return h.enqueue(event{kind: joinEvent, session: s, username: username})
}

// SendMessage queues a chat message from the session. Messages from unjoined
// sessions are dropped inside the loop without an error.
func (h *Hub) SendMessage(s *Session, text string) error {
	if s == nil {
		return ErrNilSession
	}
	return h.enqueue(event{kind: messageEvent, session: s, text: text})
}

// Typing queues a typing notification from the session.
func (h *Hub) Typing(s *Session) error {
	if s == nil {
		return ErrNilSession
	}
	return h.enqueue(event{kind: typingEvent, session: s})
}

// Disconnect removes the session. The transport calls this once per
// connection termination; repeated calls for the same session are no-ops.
func (h *Hub) Disconnect(s *Session) error {
	if s == nil {
		return ErrNilSession
	}
	return h.enqueue(event{kind: disconnectEvent, session: s})
}

// Roster returns the joined usernames in join order.
func (h *Hub) Roster() []string {
	return h.registry.Roster()
}

// History returns a snapshot of the retained messages, oldest first.
func (h *Hub) History() []types.Message {
	return h.history.Snapshot()
}

// Stats returns current hub sizes for the API layer.
func (h *Hub) Stats() Stats {
	reg := h.registry.Stats()
	return Stats{
		Connected:   reg.Connected,
		Joined:      reg.Joined,
		HistorySize: h.history.Len(),
	}
}

func (h *Hub) enqueue(ev event) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.events <- ev:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// run is the hub's event loop. It is the only goroutine that mutates the
// registry and history, which serializes all four operations system-wide.
func (h *Hub) run(ctx context.Context) {
	defer h.logger.Info("chat hub stopped")

	for {
		select {
		case ev := <-h.events:
			h.dispatch(ev)
		case <-h.shutdownChannel:
			return
		case <-ctx.Done():
			h.logger.Info("chat hub context cancelled")
			return
		}
	}
}

func (h *Hub) dispatch(ev event) {
	switch ev.kind {
	case connectEvent:
		h.handleConnect(ev.session)
	case joinEvent:
		h.handleJoin(ev.session, ev.username)
	case messageEvent:
		h.handleMessage(ev.session, ev.text)
	case typingEvent:
		h.handleTyping(ev.session)
	case disconnectEvent:
		h.handleDisconnect(ev.session)
	}
}

// handleConnect registers the session and replays history to it alone. Other
// sessions learn nothing until the newcomer joins.
func (h *Hub) handleConnect(s *Session) {
	if err := h.registry.Add(s); err != nil {
		h.logger.Warn("session registration failed",
			zap.String("session_id", s.ID()),
			zap.Error(err))
		return
	}

	h.send(s, types.NewHistoryEvent(h.history.Snapshot()))
	h.logger.Info("client connected",
		zap.String("session_id", s.ID()),
		zap.String("remote_addr", s.conn.RemoteAddr()))
}

// handleJoin binds the username or rejects the request. On success the join
// announcement and updated roster go to every connected session, the
// requester included; on rejection only the requester hears about it and the
// registry is untouched.
func (h *Hub) handleJoin(s *Session, username string) {
	if err := h.registry.Bind(s, username); err != nil {
		switch err {
		case ErrUsernameTaken:
			h.logger.Info("join rejected: username taken",
				zap.String("session_id", s.ID()),
				zap.String("username", username))
			h.send(s, types.NewErrorEvent("This username is already taken. Please choose another."))
		case ErrAlreadyJoined:
			// No rename operation exists; a second join is a protocol
			// violation and is dropped.
			h.logger.Warn("join ignored: session already joined",
				zap.String("session_id", s.ID()),
				zap.String("username", s.Username()))
		default:
			h.logger.Warn("join failed",
				zap.String("session_id", s.ID()),
				zap.Error(err))
		}
		return
	}

	h.logger.Info("user joined",
		zap.String("session_id", s.ID()),
		zap.String("username", username))

	h.broadcastAll(types.NewMessageEvent(h.systemMessage(fmt.Sprintf("%s has joined the chat.", username))))
	h.broadcastAll(types.NewUserListEvent(h.registry.Roster()))
}

// handleMessage stamps, retains, and fans out a chat message. Unjoined
// senders are ignored without feedback.
func (h *Hub) handleMessage(s *Session, text string) {
	if !s.Joined() {
		h.logger.Debug("dropping message from unjoined session",
			zap.String("session_id", s.ID()))
		return
	}

	msg := types.Message{
		Author:    s.Username(),
		Text:      text,
		Timestamp: h.timestamp(),
	}
	h.history.Append(msg)
	h.broadcastJoined(types.NewMessageEvent(msg))
}

// handleTyping relays a typing notification to everyone but the typer. The
// signal is transient; nothing is retained and the hub applies no debounce.
func (h *Hub) handleTyping(s *Session) {
	if !s.Joined() {
		h.logger.Debug("dropping typing signal from unjoined session",
			zap.String("session_id", s.ID()))
		return
	}
	h.broadcastExcept(s, types.NewTypingEvent(s.Username()))
}

// handleDisconnect removes the session. Only sessions that had joined produce
// a departure announcement and roster update for the remainder.
func (h *Hub) handleDisconnect(s *Session) {
	removed, existed := h.registry.Remove(s.ID())
	if !existed {
		return
	}

	h.logger.Info("client disconnected",
		zap.String("session_id", s.ID()),
		zap.String("username", removed.Username()))

	if !removed.Joined() {
		return
	}

	h.broadcastAll(types.NewMessageEvent(h.systemMessage(fmt.Sprintf("%s has left the chat.", removed.Username()))))
	h.broadcastAll(types.NewUserListEvent(h.registry.Roster()))
}

func (h *Hub) systemMessage(text string) types.Message {
	return types.Message{
		Author:    types.SystemAuthor,
		Text:      text,
		Timestamp: h.timestamp(),
	}
}

func (h *Hub) timestamp() string {
	return h.now().Format(types.TimestampLayout)
}

// send delivers one event to one session, fire-and-forget. A slow or closed
// recipient is skipped; it must never stall the loop or fail the operation
// that triggered the send.
func (h *Hub) send(s *Session, ev *types.Event) {
	if err := s.conn.Send(ev); err != nil {
		h.logger.Debug("skipping undeliverable event",
			zap.String("session_id", s.ID()),
			zap.String("event", ev.Event),
			zap.Error(err))
	}
}

func (h *Hub) broadcastAll(ev *types.Event) {
	for _, s := range h.registry.All() {
		h.send(s, ev)
	}
}

func (h *Hub) broadcastJoined(ev *types.Event) {
	for _, s := range h.registry.Joined() {
		h.send(s, ev)
	}
}

func (h *Hub) broadcastExcept(exclude *Session, ev *types.Event) {
	for _, s := range h.registry.All() {
		if s == exclude {
			continue
		}
		h.send(s, ev)
	}
}
