package bus

import "context"

// EventStore persists events for replay. The SSE and WebSocket endpoints
// read it to catch clients up before switching to live delivery.
type EventStore interface {
	// Append stores an event.
	Append(ctx context.Context, event Event) error

	// List returns stored events in publish order, optionally filtered.
	// executionID: restrict to one execution ("" means all)
	// afterSeq: return events with Seq > afterSeq (0 means all)
	// limit: max events to return (0 means no limit)
	List(ctx context.Context, executionID string, afterSeq uint64, limit int) ([]Event, error)

	// LatestSeq returns the highest stored Seq matching executionID
	// ("" means any), or 0 when nothing is stored.
	LatestSeq(ctx context.Context, executionID string) (uint64, error)
}
