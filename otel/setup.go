package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/bramble-labs/bramble/bus"
)

// Config identifies the service and names the OTLP receiver.
type Config struct {
	// ServiceName labels exported spans; defaults to "bramble".
	ServiceName string

	// OTLPEndpoint is the host:port of an OTLP/HTTP trace receiver. TLS is
	// not used; point this at a local collector.
	OTLPEndpoint string
}

// Setup wires an OTLP/HTTP trace exporter into a tracer provider and
// installs it globally. Metrics ride on the global meter provider, which
// the caller configures separately (or leaves as the no-op default). The
// returned shutdown flushes and stops the provider.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "bramble"
	}
	if cfg.OTLPEndpoint == "" {
		return nil, fmt.Errorf("otel: an OTLP endpoint is required")
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: creating trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Handler consumes bus events. MetricsHandler and TracingHandler both
// implement it.
type Handler interface {
	Handle(bus.Event)
}

// Attach subscribes the handlers to the bus and pumps every event through
// them in order, on one goroutine. The returned stop function closes the
// subscription and waits for the pump to drain.
func Attach(eb bus.EventBus, handlers ...Handler) func() {
	sub := eb.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for e := range sub.Events() {
			for _, h := range handlers {
				h.Handle(e)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.Close()
			<-done
		})
	}
}
