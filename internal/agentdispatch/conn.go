package agentdispatch

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait is the maximum time allowed to write a frame to the agent.
	writeWait = 10 * time.Second

	// maxMessageSize bounds a single incoming frame. Probe responses carry
	// arbitrary diagnostic payloads, so the limit is generous.
	maxMessageSize = 1 << 20 // 1 MiB

	// sendBufferSize is the capacity of the per-connection outbound channel.
	// A full buffer makes SendProbe fail at once with ErrTransport; the
	// connection itself stays open.
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// conn wraps one agent's WebSocket connection. Unlike a pub/sub client, an
// agent connection is bidirectional application traffic: the readPump
// dispatches every frame to the registry (register, heartbeat, probe
// response), and the writePump serialises hub-initiated probe requests onto
// the wire. Agents are not pinged by the hub — liveness is driven entirely
// by the agent.heartbeat envelope the agent sends every 30s.
type conn struct {
	registry *Registry
	ws       *websocket.Conn
	send     chan Envelope
	logger   *zap.Logger

	// agentID is set once registration completes and is otherwise the empty
	// string. Only the readPump goroutine writes it, so no lock is needed.
	agentID string
}

func newConn(registry *Registry, w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &conn{
		registry: registry,
		ws:       ws,
		send:     make(chan Envelope, sendBufferSize),
		logger:   logger.With(zap.String("remote_addr", r.RemoteAddr)),
	}, nil
}

// run blocks for the lifetime of the connection. The caller should treat
// this as the terminal step of the HTTP handler for /ws/agent.
func (c *conn) run() {
	go c.writePump()
	c.readPump()
}

func (c *conn) readPump() {
	defer func() {
		c.registry.handleDisconnect(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)

	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warn("agentdispatch: unexpected close", zap.Error(err))
			}
			return
		}
		c.registry.handleEnvelope(c, env)
	}
}

func (c *conn) writePump() {
	for msg := range c.send {
		if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			c.logger.Warn("agentdispatch: failed to set write deadline", zap.Error(err))
			return
		}
		if err := c.ws.WriteJSON(msg); err != nil {
			c.logger.Warn("agentdispatch: write error", zap.Error(err))
			return
		}
	}
	_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
}

// closeSend closes the outbound channel, causing writePump to drain and
// send a close frame. Safe to call at most once per connection.
func (c *conn) closeSend() {
	close(c.send)
}
