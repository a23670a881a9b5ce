package bus

import (
	"context"
	"testing"
)

func storedEvent(kind EventKind, executionID string, seq uint64) Event {
	e := NewEvent(kind, executionID)
	e.Seq = seq
	return e
}

func TestMemEventStore_Append_List(t *testing.T) {
	store := NewMemEventStore(0)

	for i := 1; i <= 5; i++ {
		if err := store.Append(context.Background(), storedEvent(EventNodeTicked, "exec-1", uint64(i))); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	events, err := store.List(context.Background(), "exec-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 5 {
		t.Errorf("got %d events, want 5", len(events))
	}
}

func TestMemEventStore_List_AfterSeq(t *testing.T) {
	store := NewMemEventStore(0)

	for i := 1; i <= 10; i++ {
		store.Append(context.Background(), storedEvent(EventNodeTicked, "exec-1", uint64(i)))
	}

	events, err := store.List(context.Background(), "exec-1", 7, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want 3 (seq 8,9,10)", len(events))
	}
	if events[0].Seq != 8 {
		t.Errorf("first event Seq = %d, want 8", events[0].Seq)
	}
}

func TestMemEventStore_List_WithLimit(t *testing.T) {
	store := NewMemEventStore(0)

	for i := 1; i <= 10; i++ {
		store.Append(context.Background(), storedEvent(EventNodeTicked, "exec-1", uint64(i)))
	}

	events, err := store.List(context.Background(), "exec-1", 0, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want 3", len(events))
	}
	if events[2].Seq != 3 {
		t.Errorf("last event Seq = %d, want 3", events[2].Seq)
	}
}

func TestMemEventStore_List_AllExecutions(t *testing.T) {
	store := NewMemEventStore(0)

	store.Append(context.Background(), storedEvent(EventTickCompleted, "exec-1", 1))
	store.Append(context.Background(), storedEvent(EventTickCompleted, "exec-2", 2))
	store.Append(context.Background(), storedEvent(EventTreeSaved, "", 3))

	events, err := store.List(context.Background(), "", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want all 3", len(events))
	}
}

func TestMemEventStore_ExecutionIsolation(t *testing.T) {
	store := NewMemEventStore(0)

	store.Append(context.Background(), storedEvent(EventExecutionCreated, "exec-1", 1))
	store.Append(context.Background(), storedEvent(EventExecutionCreated, "exec-2", 2))

	events, _ := store.List(context.Background(), "exec-1", 0, 0)
	if len(events) != 1 {
		t.Errorf("exec-1 events = %d, want 1", len(events))
	}
}

func TestMemEventStore_LatestSeq(t *testing.T) {
	store := NewMemEventStore(0)

	seq, err := store.LatestSeq(context.Background(), "exec-1")
	if err != nil {
		t.Fatalf("LatestSeq: %v", err)
	}
	if seq != 0 {
		t.Errorf("empty store LatestSeq = %d, want 0", seq)
	}

	for i := 1; i <= 5; i++ {
		store.Append(context.Background(), storedEvent(EventNodeTicked, "exec-1", uint64(i)))
	}
	store.Append(context.Background(), storedEvent(EventNodeTicked, "exec-2", 9))

	seq, err = store.LatestSeq(context.Background(), "exec-1")
	if err != nil {
		t.Fatalf("LatestSeq: %v", err)
	}
	if seq != 5 {
		t.Errorf("LatestSeq(exec-1) = %d, want 5", seq)
	}

	seq, _ = store.LatestSeq(context.Background(), "")
	if seq != 9 {
		t.Errorf("LatestSeq(all) = %d, want 9", seq)
	}
}

func TestMemEventStore_RingEvictsOldest(t *testing.T) {
	store := NewMemEventStore(3)

	for i := 1; i <= 5; i++ {
		store.Append(context.Background(), storedEvent(EventNodeTicked, "exec-1", uint64(i)))
	}

	if store.Len() != 3 {
		t.Fatalf("Len = %d, want 3", store.Len())
	}

	events, err := store.List(context.Background(), "exec-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, want := range []uint64{3, 4, 5} {
		if events[i].Seq != want {
			t.Errorf("events[%d].Seq = %d, want %d", i, events[i].Seq, want)
		}
	}
}
