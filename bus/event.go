package bus

import (
	"time"

	"github.com/bramble-labs/bramble/core"
)

// EventKind identifies the type of event emitted during execution.
type EventKind string

const (
	// EventExecutionCreated is emitted when an execution instance is created.
	EventExecutionCreated EventKind = "execution.created"

	// EventExecutionDestroyed is emitted when an execution instance is
	// removed from the service.
	EventExecutionDestroyed EventKind = "execution.destroyed"

	// EventTickStarted is emitted before a tick pass over the tree begins.
	EventTickStarted EventKind = "tick.started"

	// EventTickCompleted is emitted after a tick pass finishes, with the
	// root status in Status.
	EventTickCompleted EventKind = "tick.completed"

	// EventNodeTicked is emitted for every node evaluation within a tick.
	// This is the high-frequency kind; payloads stay minimal.
	EventNodeTicked EventKind = "node.ticked"

	// EventSnapshotCaptured is emitted after a post-tick snapshot lands in
	// history.
	EventSnapshotCaptured EventKind = "snapshot.captured"

	// EventBreakpointHit is emitted when an armed breakpoint matches and
	// pauses the execution.
	EventBreakpointHit EventKind = "breakpoint.hit"

	// EventWatchTriggered is emitted when a blackboard watch condition
	// becomes true.
	EventWatchTriggered EventKind = "watch.triggered"

	// EventExecutionPaused is emitted when an execution enters PAUSED.
	EventExecutionPaused EventKind = "execution.paused"

	// EventExecutionResumed is emitted when a paused execution resumes.
	EventExecutionResumed EventKind = "execution.resumed"

	// EventExecutionStopped is emitted when an execution enters STOPPED.
	EventExecutionStopped EventKind = "execution.stopped"

	// EventTreeSaved is emitted when a tree definition is created or updated
	// in the catalog.
	EventTreeSaved EventKind = "tree.saved"

	// EventTreeDeleted is emitted when a tree definition is removed from the
	// catalog.
	EventTreeDeleted EventKind = "tree.deleted"

	// EventScheduleFired is emitted when a schedule triggers ticks on an
	// execution.
	EventScheduleFired EventKind = "schedule.fired"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured, streamable record of what happened during execution.
// Events stay small; full tick state lives in the history store and is
// referenced by execution id and tick.
type Event struct {
	// Seq is a monotonic sequence number stamped by the bus on publish.
	// Zero means not yet published.
	Seq uint64 `json:"seq,omitempty"`

	// Kind identifies the event type.
	Kind EventKind `json:"kind"`

	// ExecutionID is the execution this event belongs to. Empty for catalog
	// events such as tree.saved.
	ExecutionID string `json:"execution_id,omitempty"`

	// TreeID is the catalog id of the tree involved, when known.
	TreeID string `json:"tree_id,omitempty"`

	// NodeID is the node that produced this event (empty for execution-level
	// events).
	NodeID string `json:"node_id,omitempty"`

	// Tick is the tick count at the time of the event (0 before the first).
	Tick int `json:"tick,omitempty"`

	// Status carries the node or root status for tick and node events.
	Status core.Status `json:"status,omitempty"`

	// Payload contains event-specific data. Kept small.
	Payload map[string]any `json:"payload,omitempty"`

	// Elapsed is how long the work that produced the event took.
	Elapsed time.Duration `json:"elapsed,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(kind EventKind, executionID string) Event {
	return Event{
		Kind:        kind,
		ExecutionID: executionID,
		Timestamp:   time.Now().UTC(),
	}
}

// WithTree sets the tree id on the event.
func (e Event) WithTree(treeID string) Event {
	e.TreeID = treeID
	return e
}

// WithNode sets the node id on the event.
func (e Event) WithNode(nodeID string) Event {
	e.NodeID = nodeID
	return e
}

// WithTick sets the tick count on the event.
func (e Event) WithTick(tick int) Event {
	e.Tick = tick
	return e
}

// WithStatus sets the status on the event.
func (e Event) WithStatus(status core.Status) Event {
	e.Status = status
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithPayload adds a key-value pair to the event payload. The payload map
// is copied so earlier copies of the event are not written through.
func (e Event) WithPayload(key string, value any) Event {
	payload := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value
	e.Payload = payload
	return e
}
