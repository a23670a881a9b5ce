package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bramble-labs/bramble/bus"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before dropping the client.
	pongWait = 60 * time.Second

	// pingPeriod is how often protocol pings go out. Must be under pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound client messages.
	maxMessageSize = 4 * 1024

	// sendQueueSize is the per-client outbound buffer. Frames are dropped
	// when the queue is full.
	sendQueueSize = 64
)

// client is one connected peer and its subscription view. A fresh client
// receives nothing until it sends subscribe or subscribe_all.
type client struct {
	hub  *Hub
	conn *websocket.Conn

	sendMu     sync.Mutex
	send       chan outboundMessage
	sendClosed bool

	mu         sync.Mutex
	all        bool
	executions map[string]struct{}
	kinds      map[bus.EventKind]struct{}
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	return &client{
		hub:        h,
		conn:       conn,
		send:       make(chan outboundMessage, sendQueueSize),
		executions: make(map[string]struct{}),
		kinds:      make(map[bus.EventKind]struct{}),
	}
}

// wantsEvent reports whether the client's view includes the event. Events
// without an execution id (catalog and schedule events) only reach
// subscribe_all clients.
func (c *client) wantsEvent(e bus.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.all {
		if _, ok := c.executions[e.ExecutionID]; !ok {
			return false
		}
	}
	if len(c.kinds) > 0 {
		if _, ok := c.kinds[e.Kind]; !ok {
			return false
		}
	}
	return true
}

// enqueue queues a frame for delivery, dropping it when the queue is full or
// the client is already closed.
func (c *client) enqueue(msg outboundMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// close shuts the send queue down once. writePump drains what is queued,
// writes a close frame and closes the connection.
func (c *client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// readPump consumes client messages until the connection drops. Transport
// errors end the session; malformed payloads only earn an error frame.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(errorFrame("invalid message: " + err.Error()))
			continue
		}
		c.handleMessage(msg)
	}
}

// handleMessage applies one client action to the subscription view.
func (c *client) handleMessage(msg inboundMessage) {
	switch msg.Action {
	case actionSubscribe:
		if msg.ExecutionID == "" {
			c.enqueue(errorFrame("subscribe requires execution_id"))
			return
		}
		c.mu.Lock()
		c.executions[msg.ExecutionID] = struct{}{}
		c.mu.Unlock()

	case actionUnsubscribe:
		c.mu.Lock()
		if msg.ExecutionID == "" {
			// Bare unsubscribe clears the whole view.
			c.all = false
			c.executions = make(map[string]struct{})
		} else {
			delete(c.executions, msg.ExecutionID)
		}
		c.mu.Unlock()

	case actionSubscribeAll:
		c.mu.Lock()
		c.all = true
		c.mu.Unlock()

	case actionFilter:
		kinds := make(map[bus.EventKind]struct{}, len(msg.Kinds))
		for _, k := range msg.Kinds {
			kinds[bus.EventKind(k)] = struct{}{}
		}
		c.mu.Lock()
		c.kinds = kinds
		c.mu.Unlock()

	case actionPing:
		c.enqueue(newFrame(actionPong, nil))

	default:
		c.enqueue(errorFrame(fmt.Sprintf("unknown action %q", msg.Action)))
	}
}

// writePump writes queued frames and periodic protocol pings. It owns the
// connection teardown.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
