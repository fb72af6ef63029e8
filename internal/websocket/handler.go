package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chathub/internal/config"
	"chathub/internal/hub"
	"chathub/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is deferred to the deployment's reverse proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests to WebSocket connections and translates the
// wire protocol into hub operations. It is the validation boundary: empty or
// malformed payloads are dropped here and never reach the hub.
type Handler struct {
	hub    *hub.Hub
	cfg    *config.WebSocketConfig
	logger *zap.Logger
}

// NewHandler creates a WebSocket handler bound to the given hub.
func NewHandler(h *hub.Hub, cfg *config.WebSocketConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:    h,
		cfg:    cfg,
		logger: logger,
	}
}

// HandleWebSocket upgrades the request and registers the connection with the
// hub as a new, unjoined session.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(h.cfg.MaxMessageSize)

	wsConn := NewConnection(conn, h.cfg.SendBufferSize, h.cfg.WriteTimeout, h.logger)
	session, err := h.hub.Connect(wsConn)
	if err != nil {
		h.logger.Warn("hub rejected connection",
			zap.String("remote_addr", wsConn.RemoteAddr()),
			zap.Error(err))
		_ = wsConn.Close()
		return
	}

	go h.handleConnection(session, wsConn)
}

// handleConnection owns the read side of one connection: heartbeat deadlines,
// the read loop, and the single disconnect signal when the connection dies.
func (h *Handler) handleConnection(session *hub.Session, wsConn *Connection) {
	defer func() {
		if err := h.hub.Disconnect(session); err != nil {
			h.logger.Warn("disconnect signal failed",
				zap.String("session_id", session.ID()),
				zap.Error(err))
		}
		_ = wsConn.Close()
	}()

	if err := wsConn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		h.logger.Warn("failed to set read deadline", zap.Error(err))
		return
	}
	wsConn.conn.SetPongHandler(func(string) error {
		return wsConn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if err := wsConn.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-wsConn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := wsConn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error",
					zap.String("session_id", session.ID()),
					zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.processEvent(session, data)
	}
}

// processEvent decodes one inbound frame and enforces the boundary
// preconditions before anything touches the hub.
func (h *Handler) processEvent(session *hub.Session, data []byte) {
	var ev types.ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		h.logger.Debug("dropping malformed frame",
			zap.String("session_id", session.ID()),
			zap.Error(err))
		return
	}

	switch ev.Event {
	case types.EventJoin:
		h.processJoin(session, ev.Data)
	case types.EventMessage:
		h.processMessage(session, ev.Data)
	case types.EventTyping:
		if err := h.hub.Typing(session); err != nil {
			h.logger.Debug("typing signal dropped",
				zap.String("session_id", session.ID()),
				zap.Error(err))
		}
	default:
		h.logger.Debug("dropping unknown event",
			zap.String("session_id", session.ID()),
			zap.String("event", ev.Event))
	}
}

func (h *Handler) processJoin(session *hub.Session, data json.RawMessage) {
	var payload types.JoinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.logger.Debug("dropping malformed join payload",
			zap.String("session_id", session.ID()),
			zap.Error(err))
		return
	}

	if err := types.ValidateUsername(payload.Username); err != nil {
		h.logger.Debug("dropping invalid join request",
			zap.String("session_id", session.ID()),
			zap.Error(err))
		return
	}

	username := types.NormalizeUsername(payload.Username)
	if err := h.hub.Join(session, username); err != nil {
		h.logger.Warn("join request dropped",
			zap.String("session_id", session.ID()),
			zap.Error(err))
	}
}

func (h *Handler) processMessage(session *hub.Session, data json.RawMessage) {
	var payload types.MessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.logger.Debug("dropping malformed message payload",
			zap.String("session_id", session.ID()),
			zap.Error(err))
		return
	}

	if err := types.ValidateMessageText(payload.Text); err != nil {
		h.logger.Debug("dropping empty message",
			zap.String("session_id", session.ID()),
			zap.Error(err))
		return
	}

	// The text is forwarded as given; rendering it as plain text is the
	// client's responsibility.
	if err := h.hub.SendMessage(session, payload.Text); err != nil {
		h.logger.Warn("message dropped",
			zap.String("session_id", session.ID()),
			zap.Error(err))
	}
}
