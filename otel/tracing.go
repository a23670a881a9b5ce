// Package otel translates bramble bus events into OpenTelemetry signals.
package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bramble-labs/bramble/bus"
	"github.com/bramble-labs/bramble/core"
)

// TracingHandler translates bus events into OpenTelemetry spans: one span
// per tree tick, paired from tick.started and tick.completed, with a child
// span per node evaluation. Ticks are serialized per execution, so one
// open span per execution id suffices.
type TracingHandler struct {
	tracer trace.Tracer

	mu       sync.Mutex
	tickSpan map[string]trace.Span
	tickCtx  map[string]context.Context
}

// NewTracingHandler creates a TracingHandler producing spans on tracer.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:   tracer,
		tickSpan: make(map[string]trace.Span),
		tickCtx:  make(map[string]context.Context),
	}
}

// Handle opens and closes spans for one bus event.
func (h *TracingHandler) Handle(e bus.Event) {
	switch e.Kind {
	case bus.EventTickStarted:
		h.handleTickStarted(e)
	case bus.EventNodeTicked:
		h.handleNodeTicked(e)
	case bus.EventTickCompleted:
		h.handleTickCompleted(e)
	case bus.EventExecutionStopped, bus.EventExecutionDestroyed:
		h.abandonTick(e)
	}
}

func (h *TracingHandler) handleTickStarted(e bus.Event) {
	ctx, span := h.tracer.Start(context.Background(), "bramble.tick",
		trace.WithAttributes(
			attribute.String("execution_id", e.ExecutionID),
			attribute.String("tree_id", e.TreeID),
			attribute.Int("tick", e.Tick),
		),
		trace.WithTimestamp(e.Timestamp),
	)

	h.mu.Lock()
	h.tickSpan[e.ExecutionID] = span
	h.tickCtx[e.ExecutionID] = ctx
	h.mu.Unlock()
}

// handleNodeTicked records each node evaluation as a child span. The bus
// reports evaluations after the fact, so the span opens and closes at the
// event timestamp.
func (h *TracingHandler) handleNodeTicked(e bus.Event) {
	h.mu.Lock()
	parentCtx, ok := h.tickCtx[e.ExecutionID]
	h.mu.Unlock()
	if !ok {
		return
	}

	nodeType, _ := e.Payload["node_type"].(string)
	_, span := h.tracer.Start(parentCtx, "bramble.node:"+e.NodeID,
		trace.WithAttributes(
			attribute.String("execution_id", e.ExecutionID),
			attribute.String("node_id", e.NodeID),
			attribute.String("node_type", nodeType),
			attribute.String("status", string(e.Status)),
		),
		trace.WithTimestamp(e.Timestamp),
	)
	if e.Status == core.StatusFailure {
		span.SetStatus(codes.Error, fmt.Sprintf("node %s failed", e.NodeID))
	}
	span.End(trace.WithTimestamp(e.Timestamp))
}

func (h *TracingHandler) handleTickCompleted(e bus.Event) {
	h.mu.Lock()
	span, ok := h.tickSpan[e.ExecutionID]
	if ok {
		delete(h.tickSpan, e.ExecutionID)
		delete(h.tickCtx, e.ExecutionID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(
		attribute.String("status", string(e.Status)),
		attribute.String("elapsed", e.Elapsed.String()),
	)
	if e.Status == core.StatusFailure {
		span.SetStatus(codes.Error, "tick ended in FAILURE")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.Timestamp))
}

// abandonTick closes a dangling tick span when its execution goes away.
func (h *TracingHandler) abandonTick(e bus.Event) {
	h.mu.Lock()
	span, ok := h.tickSpan[e.ExecutionID]
	if ok {
		delete(h.tickSpan, e.ExecutionID)
		delete(h.tickCtx, e.ExecutionID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	span.SetStatus(codes.Error, string(e.Kind))
	span.End(trace.WithTimestamp(e.Timestamp))
}
