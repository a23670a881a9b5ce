package behavior

import (
	"testing"

	"github.com/bramble-labs/bramble/core"
)

func TestParallelRequireAll(t *testing.T) {
	t.Run("succeeds when all succeed", func(t *testing.T) {
		par := NewParallel("par", PolicyRequireAll,
			newProbe("a"),
			newProbe("b", core.StatusRunning, core.StatusSuccess),
		)
		if got := par.Tick(newTestTick(t)); got != core.StatusRunning {
			t.Fatalf("tick 1 status = %v, want RUNNING", got)
		}
		if got := par.Tick(newTestTick(t)); got != core.StatusSuccess {
			t.Fatalf("tick 2 status = %v, want SUCCESS", got)
		}
	})

	t.Run("fails fast on any failure", func(t *testing.T) {
		par := NewParallel("par", PolicyRequireAll,
			newProbe("a"),
			newProbe("b", core.StatusFailure),
		)
		if got := par.Tick(newTestTick(t)); got != core.StatusFailure {
			t.Errorf("status = %v, want FAILURE", got)
		}
	})
}

func TestParallelRequireOne(t *testing.T) {
	t.Run("succeeds on first success", func(t *testing.T) {
		running := newProbe("b", core.StatusRunning)
		par := NewParallel("par", PolicyRequireOne,
			newProbe("a"),
			running,
		)
		if got := par.Tick(newTestTick(t)); got != core.StatusSuccess {
			t.Fatalf("status = %v, want SUCCESS", got)
		}
		if running.Status() != core.StatusInvalid {
			t.Errorf("abandoned running child status = %v, want INVALID", running.Status())
		}
	})

	t.Run("fails only when all fail", func(t *testing.T) {
		par := NewParallel("par", PolicyRequireOne,
			newProbe("a", core.StatusFailure),
			newProbe("b", core.StatusFailure),
		)
		if got := par.Tick(newTestTick(t)); got != core.StatusFailure {
			t.Errorf("status = %v, want FAILURE", got)
		}
	})
}

func TestParallelHasNoCurrentChild(t *testing.T) {
	par := NewParallel("par", PolicyRequireAll, newProbe("a", core.StatusRunning))
	par.Tick(newTestTick(t))
	if got := par.CurrentChild(); got != -1 {
		t.Errorf("CurrentChild() = %d, want -1", got)
	}
}
