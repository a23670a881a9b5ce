package ws_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bramble-labs/bramble/bus"
	"github.com/bramble-labs/bramble/ws"
)

type frame struct {
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type eventFields struct {
	Seq         uint64 `json:"seq"`
	Kind        string `json:"kind"`
	ExecutionID string `json:"execution_id"`
	TreeID      string `json:"tree_id"`
	NodeID      string `json:"node_id"`
	Tick        int    `json:"tick"`
}

func newTestHub(t *testing.T, eb bus.EventBus, coalesce time.Duration) *ws.Hub {
	t.Helper()
	hub, err := ws.NewHub(ws.HubConfig{Bus: eb, CoalesceInterval: coalesce})
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	t.Cleanup(func() { _ = hub.Close() })
	return hub
}

func dialHub(t *testing.T, hub *ws.Hub) *websocket.Conn {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle("GET /api/ws", hub)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return f
}

func readEvent(t *testing.T, conn *websocket.Conn) eventFields {
	t.Helper()
	f := readFrame(t, conn)
	if f.Action != "event" {
		t.Fatalf("frame action = %q, want event", f.Action)
	}
	var e eventFields
	if err := json.Unmarshal(f.Data, &e); err != nil {
		t.Fatalf("event data is not JSON: %v", err)
	}
	return e
}

func sendAction(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	// Let the server apply the action before events are published.
	time.Sleep(100 * time.Millisecond)
}

func waitForCount(t *testing.T, hub *ws.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), want)
}

func TestNewHub_RequiresBus(t *testing.T) {
	if _, err := ws.NewHub(ws.HubConfig{}); err == nil {
		t.Fatal("NewHub() with no bus should fail")
	}
}

func TestHub_ConnectedFrame(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 0)
	conn := dialHub(t, hub)

	f := readFrame(t, conn)
	if f.Action != "connected" {
		t.Errorf("first frame action = %q, want connected", f.Action)
	}
	if f.Timestamp.IsZero() {
		t.Error("connected frame has zero timestamp")
	}
}

func TestHub_SubscribeReceivesEvents(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 0)
	conn := dialHub(t, hub)
	readFrame(t, conn) // connected

	sendAction(t, conn, map[string]any{"action": "subscribe", "execution_id": "exec-1"})

	eb.Publish(bus.NewEvent(bus.EventTickCompleted, "exec-1").WithTree("patrol").WithTick(3))

	evt := readEvent(t, conn)
	if evt.Kind != "tick.completed" {
		t.Errorf("kind = %q, want tick.completed", evt.Kind)
	}
	if evt.ExecutionID != "exec-1" {
		t.Errorf("execution_id = %q, want exec-1", evt.ExecutionID)
	}
	if evt.TreeID != "patrol" {
		t.Errorf("tree_id = %q, want patrol", evt.TreeID)
	}
	if evt.Tick != 3 {
		t.Errorf("tick = %d, want 3", evt.Tick)
	}
	if evt.Seq == 0 {
		t.Error("seq not stamped")
	}
}

func TestHub_SubscribeFiltersOtherExecutions(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 0)
	conn := dialHub(t, hub)
	readFrame(t, conn) // connected

	sendAction(t, conn, map[string]any{"action": "subscribe", "execution_id": "exec-1"})

	eb.Publish(bus.NewEvent(bus.EventTickCompleted, "exec-2"))
	eb.Publish(bus.NewEvent(bus.EventTickCompleted, "exec-1"))

	evt := readEvent(t, conn)
	if evt.ExecutionID != "exec-1" {
		t.Errorf("execution_id = %q, want exec-1 (exec-2 must be filtered)", evt.ExecutionID)
	}
}

func TestHub_SubscribeAllReceivesCatalogEvents(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 0)
	conn := dialHub(t, hub)
	readFrame(t, conn) // connected

	sendAction(t, conn, map[string]any{"action": "subscribe_all"})

	// tree.saved has no execution id; only subscribe_all clients see it.
	eb.Publish(bus.NewEvent(bus.EventTreeSaved, "").WithTree("patrol"))
	eb.Publish(bus.NewEvent(bus.EventTickStarted, "exec-1"))

	first := readEvent(t, conn)
	if first.Kind != "tree.saved" || first.TreeID != "patrol" {
		t.Errorf("first event = %s/%s, want tree.saved/patrol", first.Kind, first.TreeID)
	}
	second := readEvent(t, conn)
	if second.Kind != "tick.started" {
		t.Errorf("second event kind = %q, want tick.started", second.Kind)
	}
}

func TestHub_KindFilter(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 0)
	conn := dialHub(t, hub)
	readFrame(t, conn) // connected

	sendAction(t, conn, map[string]any{"action": "subscribe_all"})
	sendAction(t, conn, map[string]any{"action": "filter", "kinds": []string{"tick.completed"}})

	eb.Publish(bus.NewEvent(bus.EventTickStarted, "exec-1"))
	eb.Publish(bus.NewEvent(bus.EventTickCompleted, "exec-1"))

	evt := readEvent(t, conn)
	if evt.Kind != "tick.completed" {
		t.Errorf("kind = %q, want tick.completed (tick.started must be filtered)", evt.Kind)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 0)
	conn := dialHub(t, hub)
	readFrame(t, conn) // connected

	sendAction(t, conn, map[string]any{"action": "subscribe", "execution_id": "exec-1"})
	sendAction(t, conn, map[string]any{"action": "subscribe", "execution_id": "exec-2"})
	sendAction(t, conn, map[string]any{"action": "unsubscribe", "execution_id": "exec-1"})

	eb.Publish(bus.NewEvent(bus.EventTickCompleted, "exec-1"))
	eb.Publish(bus.NewEvent(bus.EventTickCompleted, "exec-2"))

	evt := readEvent(t, conn)
	if evt.ExecutionID != "exec-2" {
		t.Errorf("execution_id = %q, want exec-2 (exec-1 was unsubscribed)", evt.ExecutionID)
	}
}

func TestHub_Ping(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 0)
	conn := dialHub(t, hub)
	readFrame(t, conn) // connected

	sendAction(t, conn, map[string]any{"action": "ping"})

	f := readFrame(t, conn)
	if f.Action != "pong" {
		t.Errorf("frame action = %q, want pong", f.Action)
	}
}

func TestHub_UnknownAction(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 0)
	conn := dialHub(t, hub)
	readFrame(t, conn) // connected

	sendAction(t, conn, map[string]any{"action": "dance"})

	f := readFrame(t, conn)
	if f.Action != "error" {
		t.Fatalf("frame action = %q, want error", f.Action)
	}
	var data map[string]string
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("error data is not JSON: %v", err)
	}
	if !strings.Contains(data["message"], "unknown action") {
		t.Errorf("error message = %q, want mention of unknown action", data["message"])
	}
}

func TestHub_SubscribeRequiresExecutionID(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 0)
	conn := dialHub(t, hub)
	readFrame(t, conn) // connected

	sendAction(t, conn, map[string]any{"action": "subscribe"})

	f := readFrame(t, conn)
	if f.Action != "error" {
		t.Errorf("frame action = %q, want error", f.Action)
	}
}

func TestHub_MalformedMessage(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 0)
	conn := dialHub(t, hub)
	readFrame(t, conn) // connected

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	f := readFrame(t, conn)
	if f.Action != "error" {
		t.Fatalf("frame action = %q, want error", f.Action)
	}

	// The connection must survive a malformed message.
	sendAction(t, conn, map[string]any{"action": "ping"})
	if f := readFrame(t, conn); f.Action != "pong" {
		t.Errorf("frame action after bad message = %q, want pong", f.Action)
	}
}

func TestHub_CoalescesNodeTicks(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 300*time.Millisecond)
	conn := dialHub(t, hub)
	readFrame(t, conn) // connected

	sendAction(t, conn, map[string]any{"action": "subscribe_all"})

	for i := 1; i <= 5; i++ {
		eb.Publish(bus.NewEvent(bus.EventNodeTicked, "exec-1").WithNode("n-move").WithTick(i))
	}

	evt := readEvent(t, conn)
	if evt.Kind != "node.ticked" {
		t.Fatalf("kind = %q, want node.ticked", evt.Kind)
	}
	if evt.Tick != 5 {
		t.Errorf("tick = %d, want 5 (only the latest node tick flushes)", evt.Tick)
	}

	// No further frames: the burst coalesced into one.
	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var extra frame
	if err := conn.ReadJSON(&extra); err == nil {
		t.Errorf("unexpected extra frame %q after coalesced burst", extra.Action)
	}
}

func TestHub_ClientCount(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 0)

	conn := dialHub(t, hub)
	readFrame(t, conn) // connected
	waitForCount(t, hub, 1)

	_ = conn.Close()
	waitForCount(t, hub, 0)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()
	hub := newTestHub(t, eb, 0)
	conn := dialHub(t, hub)
	readFrame(t, conn) // connected

	if err := hub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("read after hub close should fail")
	}
}
