// Package ws fans execution events out to WebSocket clients.
//
// A Hub holds one subscription to the event bus and forwards events to every
// connected client whose view matches. Clients shape their view with small
// JSON action messages (subscribe, unsubscribe, subscribe_all, filter, ping);
// the hub answers with event, connected, pong and error frames. node.ticked
// events pass through a coalescing throttle so a fast-ticking tree does not
// turn every node evaluation into a frame.
package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bramble-labs/bramble/bus"
)

// Actions clients send.
const (
	actionSubscribe    = "subscribe"
	actionUnsubscribe  = "unsubscribe"
	actionSubscribeAll = "subscribe_all"
	actionFilter       = "filter"
	actionPing         = "ping"
)

// Actions the hub sends.
const (
	actionEvent     = "event"
	actionConnected = "connected"
	actionPong      = "pong"
	actionError     = "error"
)

// inboundMessage is the shape of client requests.
type inboundMessage struct {
	Action      string   `json:"action"`
	ExecutionID string   `json:"execution_id,omitempty"`
	Kinds       []string `json:"kinds,omitempty"`
}

// outboundMessage is the shape of hub frames.
type outboundMessage struct {
	Action    string    `json:"action"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newFrame(action string, data any) outboundMessage {
	return outboundMessage{Action: action, Data: data, Timestamp: time.Now().UTC()}
}

func errorFrame(message string) outboundMessage {
	return newFrame(actionError, map[string]string{"message": message})
}

// eventData is the wire shape of an event inside an event frame. It matches
// the SSE data payload so both transports describe events the same way.
type eventData struct {
	Seq         uint64         `json:"seq"`
	Kind        string         `json:"kind"`
	ExecutionID string         `json:"execution_id,omitempty"`
	TreeID      string         `json:"tree_id,omitempty"`
	NodeID      string         `json:"node_id,omitempty"`
	Tick        int            `json:"tick,omitempty"`
	Status      string         `json:"status,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	ElapsedMs   int64          `json:"elapsed_ms,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

func toEventData(e bus.Event) eventData {
	return eventData{
		Seq:         e.Seq,
		Kind:        string(e.Kind),
		ExecutionID: e.ExecutionID,
		TreeID:      e.TreeID,
		NodeID:      e.NodeID,
		Tick:        e.Tick,
		Status:      string(e.Status),
		Payload:     e.Payload,
		ElapsedMs:   e.Elapsed.Milliseconds(),
		Timestamp:   e.Timestamp,
	}
}

// HubConfig configures a Hub.
type HubConfig struct {
	// Bus is the event source. Required.
	Bus bus.EventBus

	// Logger receives connection lifecycle messages.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// CoalesceInterval is the flush interval for node.ticked coalescing.
	// Zero uses the throttle default.
	CoalesceInterval time.Duration

	// CheckOrigin overrides the upgrade origin check. The default accepts
	// all origins.
	CheckOrigin func(r *http.Request) bool
}

// Hub owns the bus subscription and the set of connected clients.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	sub      *bus.Subscription
	throttle *bus.ThrottledPublisher
	done     chan struct{}
	wg       sync.WaitGroup

	closeOnce sync.Once
}

// NewHub subscribes to the bus and starts the fan-out loop.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Bus == nil {
		return nil, errors.New("ws: hub requires an event bus")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	h := &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
		done:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
	h.throttle = bus.NewThrottledPublisher(h.broadcast, bus.ThrottleConfig{
		CoalesceInterval: cfg.CoalesceInterval,
	})
	h.sub = cfg.Bus.Subscribe()

	h.wg.Add(1)
	go h.run()

	return h, nil
}

// run pumps bus events through the throttle into broadcast.
func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.done:
			return
		case evt, ok := <-h.sub.Events():
			if !ok {
				return
			}
			h.throttle.Publish(evt)
		}
	}
}

// Close disconnects every client and stops the fan-out loop. Safe to call
// more than once.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		_ = h.sub.Close()
		h.wg.Wait()
		h.throttle.Close()

		h.mu.Lock()
		clients := make([]*client, 0, len(h.clients))
		for c := range h.clients {
			clients = append(clients, c)
		}
		h.clients = make(map[*client]struct{})
		h.mu.Unlock()

		for _, c := range clients {
			c.close()
		}
	})
	return nil
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and runs the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn)
	h.register(c)
	h.logger.Info("websocket client connected", "remote", conn.RemoteAddr().String())

	c.enqueue(newFrame(actionConnected, nil))

	go c.writePump()
	c.readPump()

	h.unregister(c)
	c.close()
	h.logger.Info("websocket client disconnected", "remote", conn.RemoteAddr().String())
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// broadcast delivers one event to every client whose view matches. Enqueue
// never blocks, so a slow reader misses frames instead of stalling the rest.
func (h *Hub) broadcast(e bus.Event) {
	frame := newFrame(actionEvent, toEventData(e))

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.wantsEvent(e) {
			c.enqueue(frame)
		}
	}
}
