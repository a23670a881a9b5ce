package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bramble-labs/bramble/bus"
)

// MetricsHandler translates bramble bus events into OpenTelemetry metrics:
// tick and node-tick counters, debug hit counters, tick latency, and an
// active-execution gauge.
type MetricsHandler struct {
	ticks          metric.Int64Counter
	nodeTicks      metric.Int64Counter
	breakpointHits metric.Int64Counter
	watchHits      metric.Int64Counter
	tickDuration   metric.Float64Histogram
	active         metric.Int64UpDownCounter
}

// NewMetricsHandler creates a MetricsHandler with instruments registered on
// the given meter.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	ticks, err := meter.Int64Counter("bramble.ticks",
		metric.WithDescription("Number of completed tree ticks"),
	)
	if err != nil {
		return nil, err
	}

	nodeTicks, err := meter.Int64Counter("bramble.node.ticks",
		metric.WithDescription("Number of node evaluations"),
	)
	if err != nil {
		return nil, err
	}

	breakpointHits, err := meter.Int64Counter("bramble.breakpoint.hits",
		metric.WithDescription("Number of breakpoint hits"),
	)
	if err != nil {
		return nil, err
	}

	watchHits, err := meter.Int64Counter("bramble.watch.hits",
		metric.WithDescription("Number of blackboard watch triggers"),
	)
	if err != nil {
		return nil, err
	}

	tickDuration, err := meter.Float64Histogram("bramble.tick.duration",
		metric.WithDescription("Duration of a whole-tree tick in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	active, err := meter.Int64UpDownCounter("bramble.executions.active",
		metric.WithDescription("Number of live execution instances"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		ticks:          ticks,
		nodeTicks:      nodeTicks,
		breakpointHits: breakpointHits,
		watchHits:      watchHits,
		tickDuration:   tickDuration,
		active:         active,
	}, nil
}

// Handle records the metrics for one bus event.
func (h *MetricsHandler) Handle(e bus.Event) {
	ctx := context.Background()

	switch e.Kind {
	case bus.EventExecutionCreated:
		h.active.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tree_id", e.TreeID),
		))

	case bus.EventExecutionDestroyed:
		h.active.Add(ctx, -1, metric.WithAttributes(
			attribute.String("tree_id", e.TreeID),
		))

	case bus.EventTickCompleted:
		attrs := metric.WithAttributes(
			attribute.String("tree_id", e.TreeID),
			attribute.String("status", string(e.Status)),
		)
		h.ticks.Add(ctx, 1, attrs)
		h.tickDuration.Record(ctx, float64(e.Elapsed.Microseconds())/1000.0, attrs)

	case bus.EventNodeTicked:
		nodeType, _ := e.Payload["node_type"].(string)
		h.nodeTicks.Add(ctx, 1, metric.WithAttributes(
			attribute.String("node_type", nodeType),
			attribute.String("status", string(e.Status)),
		))

	case bus.EventBreakpointHit:
		h.breakpointHits.Add(ctx, 1, metric.WithAttributes(
			attribute.String("node_id", e.NodeID),
		))

	case bus.EventWatchTriggered:
		key, _ := e.Payload["key"].(string)
		h.watchHits.Add(ctx, 1, metric.WithAttributes(
			attribute.String("key", key),
		))
	}
}
