package bus

import (
	"testing"
	"time"

	"github.com/bramble-labs/bramble/core"
)

func TestNewEvent_SetsKindExecutionAndTime(t *testing.T) {
	e := NewEvent(EventTickCompleted, "exec-1")

	if e.Kind != EventTickCompleted {
		t.Errorf("Kind = %v, want %v", e.Kind, EventTickCompleted)
	}
	if e.ExecutionID != "exec-1" {
		t.Errorf("ExecutionID = %q, want exec-1", e.ExecutionID)
	}
	if e.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if e.Seq != 0 {
		t.Errorf("Seq = %d, want 0 before publish", e.Seq)
	}
}

func TestEvent_Builders(t *testing.T) {
	e := NewEvent(EventNodeTicked, "exec-1").
		WithTree("tree-1").
		WithNode("n-move").
		WithTick(7).
		WithStatus(core.StatusRunning).
		WithElapsed(3 * time.Millisecond).
		WithPayload("feedback", "waited 1/2 ticks")

	if e.TreeID != "tree-1" || e.NodeID != "n-move" || e.Tick != 7 {
		t.Errorf("builder fields not applied: %+v", e)
	}
	if e.Status != core.StatusRunning {
		t.Errorf("Status = %v, want RUNNING", e.Status)
	}
	if e.Elapsed != 3*time.Millisecond {
		t.Errorf("Elapsed = %v, want 3ms", e.Elapsed)
	}
	if e.Payload["feedback"] != "waited 1/2 ticks" {
		t.Errorf("Payload = %v", e.Payload)
	}
}

func TestEvent_WithPayloadDoesNotAliasEarlierCopies(t *testing.T) {
	base := NewEvent(EventWatchTriggered, "exec-1").WithPayload("key", "battery_level")

	a := base.WithPayload("value", 25)
	b := base.WithPayload("value", 15)

	if got := a.Payload["value"]; got != 25 {
		t.Errorf("a value = %v, want 25", got)
	}
	if got := b.Payload["value"]; got != 15 {
		t.Errorf("b value = %v, want 15", got)
	}
	if _, ok := base.Payload["value"]; ok {
		t.Error("base payload was written through by a derived event")
	}
}

func TestEventKind_String(t *testing.T) {
	if EventScheduleFired.String() != "schedule.fired" {
		t.Errorf("String() = %q", EventScheduleFired.String())
	}
}
