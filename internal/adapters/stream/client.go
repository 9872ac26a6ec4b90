package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/saltyscope/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

type client struct {
	id        string
	role      Role
	conn      *websocket.Conn
	send      chan ServerMessage
	hub       *Hub
	connected time.Time
	closeOnce sync.Once
}

func newClient(id string, role Role, conn *websocket.Conn, h *Hub) *client {
	return &client{
		id:        id,
		role:      role,
		conn:      conn,
		send:      make(chan ServerMessage, sendBufferSize),
		hub:       h,
		connected: time.Now(),
	}
}

// trySend never blocks; false means the client is too slow.
// Callers hold the hub lock so send is never closed underneath them.
func (c *client) trySend(m ServerMessage) bool {
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn(ctx, "client closed unexpectedly", logger.String("client", c.id), logger.Error(err))
			}
			return
		}
		c.handle(ctx, msg)
	}
}

func (c *client) handle(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case TypeAck:
		if c.role != RoleActor {
			c.hub.reply(c, ServerMessage{Type: TypeError, Error: "only actors may ack"})
			return
		}
		c.hub.resolve(msg.ID, ack{ok: msg.OK, msg: msg.Error})
	case TypePing:
		c.hub.reply(c, ServerMessage{Type: TypePong})
	default:
		c.hub.log.Debug(ctx, "unknown client message", logger.String("client", c.id), logger.String("type", msg.Type))
		c.hub.reply(c, ServerMessage{Type: TypeError, Error: "unknown message type: " + msg.Type})
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case m, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(m); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
