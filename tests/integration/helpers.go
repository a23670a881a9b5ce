//go:build integration

// Package integration drives a fully wired bramble daemon over the wire:
// SQLite catalog and history stores on disk, the in-memory event bus with
// its replay ring, the execution service, the WebSocket hub, and the HTTP
// API on a local listener. These tests are slower than the package unit
// tests and are excluded from normal `go test ./...` runs:
//
//	go test -tags=integration ./tests/integration/... -v -count=1
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bramble-labs/bramble/bus"
	"github.com/bramble-labs/bramble/exec"
	"github.com/bramble-labs/bramble/history"
	"github.com/bramble-labs/bramble/registry"
	"github.com/bramble-labs/bramble/server"
	"github.com/bramble-labs/bramble/store"
	"github.com/bramble-labs/bramble/ws"
)

// patrolJSON is the tree the flow tests run: a battery guard followed by a
// two-tick move. Three ticks reach SUCCESS.
const patrolJSON = `{
  "schema_version": "1.0",
  "tree_id": "patrol",
  "metadata": {"name": "Patrol", "tags": ["demo"]},
  "blackboard_schema": {
    "battery": {"type": "number", "default": 100}
  },
  "root": {
    "node_type": "sequence",
    "id": "n-root",
    "config": {"memory": true},
    "children": [
      {"node_type": "condition", "id": "n-battery", "config": {"key": "battery", "op": "gt", "value": 20}},
      {"node_type": "wait", "id": "n-move", "config": {"ticks": 2}}
    ]
  }
}`

// stack is one wired daemon under test.
type stack struct {
	URL    string
	Client *http.Client
	Events *bus.MemEventStore
}

// newStack assembles the daemon the way `bramble serve` does, with each
// store under a per-test temp dir, and serves it on a local listener.
// Teardown is registered on t in reverse dependency order.
func newStack(t *testing.T) *stack {
	t.Helper()

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	catalog, err := store.NewSQLiteStore(store.SQLiteConfig{DSN: filepath.Join(dir, "catalog.db")})
	if err != nil {
		t.Fatalf("opening catalog store: %v", err)
	}
	t.Cleanup(func() { _ = catalog.Close() })

	hist, err := history.NewSQLiteStore(history.SQLiteConfig{DSN: filepath.Join(dir, "history.db")})
	if err != nil {
		t.Fatalf("opening history store: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	eb := bus.NewMemBus(bus.MemBusConfig{})
	t.Cleanup(func() { _ = eb.Close() })

	events := bus.NewMemEventStore(0)
	recorder := bus.NewStoreSubscriber(events, logger)
	recorderSub := eb.Subscribe()
	go recorder.Drain(recorderSub)
	t.Cleanup(func() { _ = recorderSub.Close() })

	reg := registry.Builtins()
	svc := exec.NewService(reg,
		exec.WithBus(eb),
		exec.WithHistory(hist),
		exec.WithLogger(logger),
	)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	hub, err := ws.NewHub(ws.HubConfig{Bus: eb, Logger: logger})
	if err != nil {
		t.Fatalf("creating websocket hub: %v", err)
	}
	t.Cleanup(func() { _ = hub.Close() })

	srv := server.NewServer(server.Config{
		Registry:   reg,
		Exec:       svc,
		Catalog:    catalog,
		Bus:        eb,
		EventStore: events,
		Hub:        hub,
		Logger:     logger,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &stack{URL: ts.URL, Client: ts.Client(), Events: events}
}

// do sends one JSON request. A string body goes out verbatim; anything else
// non-nil is marshaled. The response decodes into out when out is non-nil.
// Callers assert on the returned status code.
func (s *stack) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = strings.NewReader(string(data))
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading %s %s response: %v", method, path, err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decoding %s %s response %q: %v", method, path, data, err)
		}
	}
	return resp.StatusCode
}

// createExecution builds an execution from an inline definition with
// capture on and returns its id.
func (s *stack) createExecution(t *testing.T, treeJSON string) string {
	t.Helper()

	var view struct {
		ID string `json:"id"`
	}
	status := s.do(t, http.MethodPost, "/api/executions",
		fmt.Sprintf(`{"definition": %s, "capture": true}`, treeJSON), &view)
	if status != http.StatusCreated {
		t.Fatalf("creating execution: status %d", status)
	}
	if view.ID == "" {
		t.Fatal("creating execution: empty id")
	}
	return view.ID
}

// tickResult mirrors the tick endpoint's response body.
type tickResult struct {
	Ticks       int    `json:"ticks"`
	TickCount   int    `json:"tick_count"`
	RootStatus  string `json:"root_status"`
	Paused      bool   `json:"paused"`
	PauseReason string `json:"pause_reason"`
}

// apiError mirrors the error envelope every non-2xx response carries.
type apiError struct {
	Error struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}
