// Package sse streams execution events to HTTP clients over Server-Sent
// Events. Stored events replay first, then the stream switches to live
// delivery from the bus; sequence numbers deduplicate across the seam.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bramble-labs/bramble/bus"
)

// HeartbeatInterval is the interval between SSE heartbeat comments.
const HeartbeatInterval = 15 * time.Second

// streamEvent is the JSON payload written for each event on the stream.
type streamEvent struct {
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

func toStreamEvent(e bus.Event) streamEvent {
	return streamEvent{
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

// Handler serves an SSE stream of execution events. Stored events replay
// first, then live events follow; duplicates across the seam are skipped by
// sequence number.
//
// Query parameters:
//
//	execution_id  restrict the stream to one execution (optional)
//	after_seq     replay only events with Seq greater than this (optional)
//
// SSE format:
//
//	id: {seq}
//	event: {kind}
//	data: {json}
//
// A heartbeat comment ": ping\n\n" is sent every 15 seconds. The stream
// runs until the client disconnects.
type Handler struct {
	store bus.EventStore
	bus   bus.EventBus
}

// NewHandler creates a Handler reading replay from store and live events
// from eb. store may be nil, in which case replay is skipped.
func NewHandler(store bus.EventStore, eb bus.EventBus) *Handler {
	return &Handler{
		store: store,
		bus:   eb,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	executionID := r.URL.Query().Get("execution_id")

	var afterSeq uint64
	if afterStr := r.URL.Query().Get("after_seq"); afterStr != "" {
		parsed, err := strconv.ParseUint(afterStr, 10, 64)
		if err != nil {
			http.Error(w, "invalid after_seq parameter", http.StatusBadRequest)
			return
		}
		afterSeq = parsed
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()

	// Subscribe before replaying so events that land between the two
	// phases are not lost.
	opts := []bus.SubscribeOption{}
	if executionID != "" {
		opts = append(opts, bus.WithExecution(executionID))
	}
	sub := h.bus.Subscribe(opts...)
	defer func() {
		_ = sub.Close()
	}()

	lastSeq := afterSeq
	if err := h.replayStored(ctx, w, flusher, executionID, afterSeq, &lastSeq); err != nil {
		return
	}

	h.streamLive(ctx, w, flusher, sub, &lastSeq)
}

// replayStored writes stored events to the stream and advances lastSeq.
func (h *Handler) replayStored(
	ctx context.Context,
	w http.ResponseWriter,
	flusher http.Flusher,
	executionID string,
	afterSeq uint64,
	lastSeq *uint64,
) error {
	if h.store == nil {
		return nil
	}

	events, err := h.store.List(ctx, executionID, afterSeq, 0)
	if err != nil {
		return err
	}

	for _, evt := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := writeEvent(w, evt); err != nil {
			return err
		}
		flusher.Flush()

		if evt.Seq > *lastSeq {
			*lastSeq = evt.Seq
		}
	}

	return nil
}

// streamLive forwards live events, skipping sequence numbers already sent
// during replay, and keeps the connection warm with heartbeats.
func (h *Handler) streamLive(
	ctx context.Context,
	w http.ResponseWriter,
	flusher http.Flusher,
	sub *bus.Subscription,
	lastSeq *uint64,
) {
	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-sub.Events():
			if !ok {
				return
			}

			if evt.Seq <= *lastSeq {
				continue
			}

			if err := writeEvent(w, evt); err != nil {
				return
			}
			flusher.Flush()

			*lastSeq = evt.Seq

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes a single event in SSE framing.
func writeEvent(w http.ResponseWriter, evt bus.Event) error {
	data, err := json.Marshal(toStreamEvent(evt))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Kind, data)
	return err
}
