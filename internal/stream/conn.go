package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/papertrade/internal/model"
)

// Event is one websocket message.
type Event struct {
	Type        string            `json:"type"` // "trade"
	Transaction model.Transaction `json:"transaction"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Serve upgrades the request and streams userID's transactions until the
// client disconnects, ctx ends or the hub closes.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sub := h.Subscribe(userID)
	if sub == nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	c := &streamConn{
		hub:  h,
		conn: conn,
		sub:  sub,
		done: make(chan struct{}),
	}
	return c.run(ctx)
}

// streamConn owns one upgraded connection.
type streamConn struct {
	hub  *Hub
	conn *websocket.Conn
	sub  *Subscription

	// Write serialization
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func (c *streamConn) run(ctx context.Context) error {
	logger := c.hub.logger.With("user_id", c.sub.UserID)
	logger.Debug("stream connected", "remote", c.conn.RemoteAddr().String())

	pongWait := 2 * c.hub.cfg.PingInterval
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readLoop()
	go c.heartbeatLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.shutdown()
		case <-c.done:
		}
	}()

	err := c.writeLoop()
	c.shutdown()
	logger.Debug("stream disconnected", "error", err)
	return err
}

// writeLoop forwards subscription events to the socket.
func (c *streamConn) writeLoop() error {
	for {
		tx, ok := c.sub.Next()
		if !ok {
			return nil
		}
		if err := c.write(Event{Type: "trade", Transaction: tx}); err != nil {
			return err
		}
	}
}

func (c *streamConn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// readLoop discards client frames; it exists to process control frames and
// notice disconnects.
func (c *streamConn) readLoop() {
	defer c.shutdown()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// heartbeatLoop pings the client at the configured interval.
func (c *streamConn) heartbeatLoop() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.hub.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.hub.logger.Debug("failed to send ping", "user_id", c.sub.UserID, "error", err)
				c.shutdown()
				return
			}
		}
	}
}

// shutdown closes the subscription and the socket once.
func (c *streamConn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sub.Close()

		c.writeMu.Lock()
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		c.conn.Close()
	})
}
