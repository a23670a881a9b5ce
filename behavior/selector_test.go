package behavior

import (
	"testing"

	"github.com/bramble-labs/bramble/core"
)

func TestSelectorFirstSuccessWins(t *testing.T) {
	a := newProbe("a", core.StatusFailure)
	b := newProbe("b")
	c := newProbe("c")
	sel := NewSelector("sel", false, a, b, c)

	if got := sel.Tick(newTestTick(t)); got != core.StatusSuccess {
		t.Errorf("status = %v, want SUCCESS", got)
	}
	if c.ticks != 0 {
		t.Errorf("child after success was invoked %d times, want 0", c.ticks)
	}
}

func TestSelectorAllFail(t *testing.T) {
	sel := NewSelector("sel", false,
		newProbe("a", core.StatusFailure),
		newProbe("b", core.StatusFailure),
	)

	if got := sel.Tick(newTestTick(t)); got != core.StatusFailure {
		t.Errorf("status = %v, want FAILURE", got)
	}
	if got := sel.CurrentChild(); got != -1 {
		t.Errorf("CurrentChild() = %d, want -1 after exhausting children", got)
	}
}

func TestSelectorPriorityInterrupt(t *testing.T) {
	a := newProbe("a", core.StatusFailure, core.StatusSuccess)
	b := newProbe("b", core.StatusRunning)
	sel := NewSelector("sel", false, a, b)

	if got := sel.Tick(newTestTick(t)); got != core.StatusRunning {
		t.Fatalf("tick 1 status = %v, want RUNNING", got)
	}

	// The higher priority child recovers on tick 2 and preempts.
	if got := sel.Tick(newTestTick(t)); got != core.StatusSuccess {
		t.Fatalf("tick 2 status = %v, want SUCCESS", got)
	}
	if b.ticks != 1 {
		t.Errorf("preempted child invoked %d times, want 1", b.ticks)
	}
	if b.Status() != core.StatusInvalid {
		t.Errorf("preempted child status = %v, want INVALID", b.Status())
	}
}

func TestSelectorMemorySkipsFailedPrefix(t *testing.T) {
	a := newProbe("a", core.StatusFailure)
	b := newProbe("b", core.StatusRunning, core.StatusSuccess)
	sel := NewSelector("sel", true, a, b)

	if got := sel.Tick(newTestTick(t)); got != core.StatusRunning {
		t.Fatalf("tick 1 status = %v, want RUNNING", got)
	}
	if got := sel.Tick(newTestTick(t)); got != core.StatusSuccess {
		t.Fatalf("tick 2 status = %v, want SUCCESS", got)
	}
	if a.ticks != 1 {
		t.Errorf("failed prefix invoked %d times, want 1 (memory skips it)", a.ticks)
	}
}
