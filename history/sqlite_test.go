package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bramble-labs/bramble/core"
)

// testDSN returns a unique shared-memory DSN for test isolation.
func testDSN(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
}

func newTestSQLiteStore(t *testing.T, cfg ...SQLiteConfig) *SQLiteStore {
	t.Helper()
	var c SQLiteConfig
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if c.DSN == "" {
		c.DSN = testDSN(t)
	}
	store, err := NewSQLiteStore(c)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_AppendAndTick(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	for tick := 1; tick <= 3; tick++ {
		if err := store.Append(ctx, patrolSnap("exec-1", tick, 100-float64(tick))); err != nil {
			t.Fatalf("Append(%d): %v", tick, err)
		}
	}

	snap, err := store.Tick(ctx, "exec-1", 2)
	if err != nil {
		t.Fatalf("Tick(2): %v", err)
	}
	if snap.ExecutionID != "exec-1" {
		t.Errorf("ExecutionID = %q, want exec-1", snap.ExecutionID)
	}
	if snap.TickCount != 2 {
		t.Errorf("TickCount = %d, want 2", snap.TickCount)
	}
	if snap.TreeID != "patrol-tree" || snap.TreeVersion != "1.0.0" {
		t.Errorf("tree = %s@%s, want patrol-tree@1.0.0", snap.TreeID, snap.TreeVersion)
	}
	if snap.RootStatus != core.StatusRunning {
		t.Errorf("RootStatus = %v, want RUNNING", snap.RootStatus)
	}

	// Node states and blackboard survive the JSON round trip.
	move, ok := snap.NodeStates["n-move"]
	if !ok {
		t.Fatalf("NodeStates missing n-move: %v", snap.NodeStates)
	}
	if !move.IsCurrentChild || !move.IsTip {
		t.Errorf("n-move state = %+v, want current child and tip", move)
	}
	if snap.Blackboard["battery_level"] != float64(98) {
		t.Errorf("battery_level = %v, want 98", snap.Blackboard["battery_level"])
	}
}

func TestSQLiteStore_DuplicateTickFails(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, patrolSnap("exec-1", 1, 100)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Second insert with the same (execution_id, tick) must fail on the
	// UNIQUE constraint.
	if err := store.Append(ctx, patrolSnap("exec-1", 1, 100)); err == nil {
		t.Fatal("expected error on duplicate (execution_id, tick), got nil")
	}
}

func TestSQLiteStore_RangeInclusive(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	for tick := 1; tick <= 5; tick++ {
		store.Append(ctx, patrolSnap("exec-1", tick, 100))
	}

	snaps, err := store.Range(ctx, "exec-1", 2, 4)
	if err != nil {
		t.Fatalf("Range(2,4): %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}
	if snaps[0].TickCount != 2 || snaps[2].TickCount != 4 {
		t.Errorf("range bounds = %d..%d, want 2..4", snaps[0].TickCount, snaps[2].TickCount)
	}

	if _, err := store.Range(ctx, "exec-1", 4, 2); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Range(4,2) error = %v, want ErrInvalidRange", err)
	}
	if _, err := store.Range(ctx, "ghost", 1, 2); !errors.Is(err, ErrHistoryUnavailable) {
		t.Errorf("Range on unknown execution error = %v, want ErrHistoryUnavailable", err)
	}

	// A window with no captures inside a known execution is empty, not
	// an error.
	snaps, err = store.Range(ctx, "exec-1", 6, 9)
	if err != nil {
		t.Fatalf("Range(6,9): %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("empty window returned %d snapshots", len(snaps))
	}
}

func TestSQLiteStore_LatestAndCount(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if _, err := store.Latest(ctx, "exec-1"); !errors.Is(err, ErrHistoryUnavailable) {
		t.Fatalf("Latest on empty store error = %v, want ErrHistoryUnavailable", err)
	}
	if _, err := store.Count(ctx, "exec-1"); !errors.Is(err, ErrHistoryUnavailable) {
		t.Fatalf("Count on empty store error = %v, want ErrHistoryUnavailable", err)
	}

	for tick := 1; tick <= 4; tick++ {
		store.Append(ctx, patrolSnap("exec-1", tick, 100))
	}

	snap, err := store.Latest(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if snap.TickCount != 4 {
		t.Errorf("Latest TickCount = %d, want 4", snap.TickCount)
	}

	n, err := store.Count(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}
}

func TestSQLiteStore_DeleteExecution(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	store.Append(ctx, patrolSnap("exec-1", 1, 100))
	store.Append(ctx, patrolSnap("exec-2", 1, 100))

	if err := store.DeleteExecution(ctx, "exec-1"); err != nil {
		t.Fatalf("DeleteExecution: %v", err)
	}
	if _, err := store.Tick(ctx, "exec-1", 1); !errors.Is(err, ErrHistoryUnavailable) {
		t.Errorf("Tick after delete error = %v, want ErrHistoryUnavailable", err)
	}
	if _, err := store.Tick(ctx, "exec-2", 1); err != nil {
		t.Errorf("other execution affected by delete: %v", err)
	}
}

func TestSQLiteStore_Executions(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	ids, err := store.Executions(ctx)
	if err != nil {
		t.Fatalf("Executions: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("empty store Executions = %v, want empty", ids)
	}

	store.Append(ctx, patrolSnap("exec-b", 1, 100))
	store.Append(ctx, patrolSnap("exec-a", 1, 100))
	store.Append(ctx, patrolSnap("exec-b", 2, 100))

	ids, err = store.Executions(ctx)
	if err != nil {
		t.Fatalf("Executions: %v", err)
	}
	if len(ids) != 2 || ids[0] != "exec-a" || ids[1] != "exec-b" {
		t.Errorf("Executions = %v, want [exec-a exec-b]", ids)
	}
}

func TestSQLiteStore_PruneByAge(t *testing.T) {
	store := newTestSQLiteStore(t, SQLiteConfig{
		DSN:       testDSN(t),
		Retention: Retention{MaxAge: 500 * time.Millisecond},
	})
	ctx := context.Background()

	old := patrolSnap("exec-1", 1, 100)
	old.Timestamp = time.Now().Add(-1 * time.Hour)
	store.Append(ctx, old)

	recent := patrolSnap("exec-1", 2, 90)
	recent.Timestamp = time.Now()
	store.Append(ctx, recent)

	if err := store.Prune(ctx); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	snaps, err := store.Range(ctx, "exec-1", 1, 10)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("after prune got %d snapshots, want 1", len(snaps))
	}
	if snaps[0].TickCount != 2 {
		t.Errorf("remaining TickCount = %d, want 2", snaps[0].TickCount)
	}
}

func TestSQLiteStore_PruneByCount(t *testing.T) {
	store := newTestSQLiteStore(t, SQLiteConfig{
		DSN:       testDSN(t),
		Retention: Retention{MaxPerExecution: 3},
	})
	ctx := context.Background()

	for tick := 1; tick <= 7; tick++ {
		store.Append(ctx, patrolSnap("exec-1", tick, 100))
	}
	store.Append(ctx, patrolSnap("exec-2", 1, 100))

	if err := store.Prune(ctx); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	snaps, err := store.Range(ctx, "exec-1", 1, 7)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("after prune got %d snapshots, want 3", len(snaps))
	}
	// The kept snapshots are the highest ticks: 5, 6, 7.
	if snaps[0].TickCount != 5 || snaps[2].TickCount != 7 {
		t.Errorf("retained ticks = %v, want 5..7", tickNumbers(snaps))
	}

	// Other executions keep their own window.
	n, err := store.Count(ctx, "exec-2")
	if err != nil {
		t.Fatalf("Count(exec-2): %v", err)
	}
	if n != 1 {
		t.Errorf("exec-2 Count = %d, want 1", n)
	}
}

func TestSQLiteStore_WALConcurrentReads(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	for tick := 1; tick <= 20; tick++ {
		store.Append(ctx, patrolSnap("exec-1", tick, 100))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snaps, err := store.Range(ctx, "exec-1", 1, 20)
			if err != nil {
				errs <- fmt.Errorf("Range: %w", err)
				return
			}
			if len(snaps) != 20 {
				errs <- fmt.Errorf("got %d snapshots, want 20", len(snaps))
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestSQLiteStore_PersistenceAcrossReopen(t *testing.T) {
	// A file-based DB (not memory) so data persists.
	dir := t.TempDir()
	dsn := dir + "/history.db"

	store1, err := NewSQLiteStore(SQLiteConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("open store1: %v", err)
	}

	ctx := context.Background()
	for tick := 1; tick <= 3; tick++ {
		store1.Append(ctx, patrolSnap("exec-1", tick, 100-float64(tick)))
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("close store1: %v", err)
	}

	store2, err := NewSQLiteStore(SQLiteConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("open store2: %v", err)
	}
	defer store2.Close()

	snap, err := store2.Tick(ctx, "exec-1", 3)
	if err != nil {
		t.Fatalf("Tick after reopen: %v", err)
	}
	if snap.Blackboard["battery_level"] != float64(97) {
		t.Errorf("battery_level = %v, want 97", snap.Blackboard["battery_level"])
	}

	n, _ := store2.Count(ctx, "exec-1")
	if n != 3 {
		t.Errorf("Count after reopen = %d, want 3", n)
	}
}

func TestSQLiteStore_DiffHelper(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	store.Append(ctx, patrolSnap("exec-1", 1, 80))
	store.Append(ctx, patrolSnap("exec-1", 2, 64))

	changes, err := Diff(ctx, store, "exec-1", 1, 2)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	var sawBattery bool
	for _, c := range changes {
		if c.Path == "battery_level" {
			sawBattery = true
			if c.Old != float64(80) || c.New != float64(64) {
				t.Errorf("battery change = %v -> %v, want 80 -> 64", c.Old, c.New)
			}
		}
	}
	if !sawBattery {
		t.Errorf("battery_level change missing from %+v", changes)
	}
}
