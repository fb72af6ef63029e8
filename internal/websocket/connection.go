package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chathub/pkg/types"
)

// Connection wraps a gorilla WebSocket connection behind the hub's outbound
// interface. All frames go through a single writer goroutine; Send only
// enqueues, so the hub's broadcast path can never block on one peer.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	remoteAddr   string
	logger       *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection creates a connection wrapper and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		remoteAddr:   conn.RemoteAddr().String(),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()
	return c
}

// writeLoop is the single writer for the underlying connection. It exits on
// write failure or when the connection is closed.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed",
					zap.String("remote_addr", c.remoteAddr),
					zap.Error(err))
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues an event for delivery without blocking. A full buffer means the
// peer is too slow to keep up; the event is dropped and the caller decides
// whether that matters.
func (c *Connection) Send(event *types.Event) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(event)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close shuts down the writer goroutine and the underlying connection. Safe
// to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// RemoteAddr returns the peer address captured at connect time.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}
