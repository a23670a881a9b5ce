package debug

import (
	"errors"
	"testing"

	"github.com/bramble-labs/bramble/blackboard"
	"github.com/bramble-labs/bramble/core"
)

func TestController_Defaults(t *testing.T) {
	c := NewController()

	if c.Mode() != ModeNone {
		t.Errorf("Mode = %v, want NONE", c.Mode())
	}
	if c.Paused() {
		t.Error("new controller is paused")
	}
	st := c.State()
	if len(st.Breakpoints) != 0 || len(st.Watches) != 0 {
		t.Errorf("new controller has breakpoints/watches: %+v", st)
	}
}

func TestController_SetMode(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		arg     any
		wantErr bool
	}{
		{"none", ModeNone, nil, false},
		{"step over default", ModeStepOver, nil, false},
		{"step over int", ModeStepOver, 3, false},
		{"step over json number", ModeStepOver, float64(2), false},
		{"step over bad arg", ModeStepOver, "three", true},
		{"step into", ModeStepInto, nil, false},
		{"step out with node", ModeStepOut, "n-parent", false},
		{"step out bad arg", ModeStepOut, 7, true},
		{"continue", ModeContinue, nil, false},
		{"unknown", Mode("WARP"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController()
			err := c.SetMode(tt.mode, tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("SetMode: %v", err)
			}
			if c.Mode() != tt.mode {
				t.Errorf("Mode = %v, want %v", c.Mode(), tt.mode)
			}
		})
	}
}

func TestController_SetModeClearsPause(t *testing.T) {
	c := NewController()
	c.Pause()
	if !c.Paused() {
		t.Fatal("Pause did not pause")
	}

	if err := c.SetMode(ModeStepOver, 1); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if c.Paused() {
		t.Error("SetMode left the controller paused")
	}
}

func TestController_PauseResume(t *testing.T) {
	c := NewController()
	c.SetMode(ModeContinue, nil)
	c.Pause()

	st := c.State()
	if !st.Paused || st.PauseReason == "" {
		t.Errorf("State after Pause = %+v", st)
	}

	c.Resume()
	st = c.State()
	if st.Paused || st.Mode != ModeNone || st.PauseReason != "" {
		t.Errorf("State after Resume = %+v", st)
	}
}

func TestController_BreakpointAddRemoveList(t *testing.T) {
	c := NewController()

	bp1 := c.AddBreakpoint(Breakpoint{NodeID: "n-check", Enabled: true})
	if bp1.ID == "" {
		t.Fatal("AddBreakpoint did not mint an id")
	}
	bp2 := c.AddBreakpoint(Breakpoint{ID: "b-2", NodeID: "n-move", Enabled: true, HitCount: 9})
	if bp2.HitCount != 0 {
		t.Errorf("HitCount = %d, want 0 on add", bp2.HitCount)
	}

	list := c.Breakpoints()
	if len(list) != 2 || list[0].ID != bp1.ID || list[1].ID != "b-2" {
		t.Errorf("Breakpoints() = %+v", list)
	}

	if err := c.RemoveBreakpoint(bp1.ID); err != nil {
		t.Fatalf("RemoveBreakpoint: %v", err)
	}
	if err := c.RemoveBreakpoint(bp1.ID); !errors.Is(err, ErrBreakpointNotFound) {
		t.Errorf("second remove error = %v, want ErrBreakpointNotFound", err)
	}
	if len(c.Breakpoints()) != 1 {
		t.Errorf("Breakpoints() has %d entries, want 1", len(c.Breakpoints()))
	}
}

func TestController_WatchAddRemoveList(t *testing.T) {
	c := NewController()

	w := c.AddWatch(Watch{Key: "battery_level", Enabled: true})
	if w.ID == "" {
		t.Fatal("AddWatch did not mint an id")
	}
	if w.Condition != WatchChange {
		t.Errorf("Condition = %v, want CHANGE default", w.Condition)
	}

	if err := c.RemoveWatch("missing"); !errors.Is(err, ErrWatchNotFound) {
		t.Errorf("remove missing error = %v, want ErrWatchNotFound", err)
	}
	if err := c.RemoveWatch(w.ID); err != nil {
		t.Fatalf("RemoveWatch: %v", err)
	}
	if len(c.Watches()) != 0 {
		t.Errorf("Watches() = %+v, want empty", c.Watches())
	}
}

func TestController_BreakpointPausesAfterTick(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	bp := c.AddBreakpoint(Breakpoint{NodeID: "n-check", Enabled: true})

	c.OnNodeLeave("n-other", core.StatusSuccess, board)
	out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if out.Pause {
		t.Fatalf("paused without a hit: %+v", out)
	}

	c.OnNodeLeave("n-check", core.StatusSuccess, board)
	out = c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if !out.Pause {
		t.Fatal("breakpoint hit did not pause")
	}
	if out.PausedAt != "n-check" {
		t.Errorf("PausedAt = %q, want n-check", out.PausedAt)
	}
	if len(out.Breakpoints) != 1 || out.Breakpoints[0].ID != bp.ID || out.Breakpoints[0].HitCount != 1 {
		t.Errorf("fired breakpoints = %+v", out.Breakpoints)
	}

	st := c.State()
	if !st.Paused || st.PausedAtNode != "n-check" {
		t.Errorf("State = %+v", st)
	}
	if st.Breakpoints[0].HitCount != 1 {
		t.Errorf("stored HitCount = %d, want 1", st.Breakpoints[0].HitCount)
	}
}

func TestController_ConditionalBreakpoint(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	board.Set("battery_level", 50)

	c.AddBreakpoint(Breakpoint{
		NodeID:    "n-check",
		Condition: &Predicate{Key: "battery_level", Op: "lt", Value: 20},
		Enabled:   true,
	})

	c.OnNodeLeave("n-check", core.StatusSuccess, board)
	out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if out.Pause {
		t.Fatal("breakpoint fired while predicate false")
	}

	board.Set("battery_level", 10)
	c.OnNodeLeave("n-check", core.StatusFailure, board)
	out = c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if !out.Pause {
		t.Fatal("breakpoint did not fire once predicate held")
	}
}

func TestController_DisabledBreakpointDoesNotFire(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	c.AddBreakpoint(Breakpoint{ID: "b-1", NodeID: "n-check", Enabled: false})

	c.OnNodeLeave("n-check", core.StatusSuccess, board)
	out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if out.Pause || len(out.Breakpoints) != 0 {
		t.Errorf("disabled breakpoint fired: %+v", out)
	}
}

func TestController_WatchFiresOncePerThresholdCrossing(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	board.Set("battery_level", 100)

	c.AddWatch(Watch{Key: "battery_level", Condition: WatchLess, Target: 20, Enabled: true})

	out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if len(out.Watches) != 0 {
		t.Fatalf("watch fired at 100: %+v", out.Watches)
	}

	board.Set("battery_level", 25)
	out = c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if len(out.Watches) != 0 {
		t.Fatalf("watch fired at 25: %+v", out.Watches)
	}

	board.Set("battery_level", 15)
	out = c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if len(out.Watches) != 1 {
		t.Fatalf("watch did not fire at 15: %+v", out.Watches)
	}
	if !out.Pause {
		t.Error("watch fire did not pause")
	}
	if out.Watches[0].HitCount != 1 {
		t.Errorf("HitCount = %d, want 1", out.Watches[0].HitCount)
	}

	// Still below the threshold: no second fire.
	c.Resume()
	board.Set("battery_level", 10)
	out = c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if len(out.Watches) != 0 {
		t.Fatalf("watch fired again while condition stayed true: %+v", out.Watches)
	}

	// Recover above, then drop again: fires a second time.
	board.Set("battery_level", 50)
	c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	board.Set("battery_level", 5)
	out = c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if len(out.Watches) != 1 || out.Watches[0].HitCount != 2 {
		t.Fatalf("watch did not fire on the second crossing: %+v", out.Watches)
	}
}

func TestController_ChangeWatch(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	board.Set("target", "dock")

	c.AddWatch(Watch{Key: "target", Condition: WatchChange, Enabled: true})

	// First evaluation only records the baseline.
	out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if len(out.Watches) != 0 {
		t.Fatalf("change watch fired on baseline: %+v", out.Watches)
	}

	// Same value: no fire.
	out = c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if len(out.Watches) != 0 {
		t.Fatalf("change watch fired without a change: %+v", out.Watches)
	}

	board.Set("target", "hall")
	out = c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if len(out.Watches) != 1 {
		t.Fatalf("change watch missed a change: %+v", out.Watches)
	}

	// Key disappearing counts as a change.
	c.Resume()
	board.Unset("target")
	out = c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if len(out.Watches) != 1 {
		t.Fatalf("change watch missed key removal: %+v", out.Watches)
	}
}

func TestController_WatchCoercesNumericTypes(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	board.Set("battery_level", 80)

	c.AddWatch(Watch{Key: "battery_level", Condition: WatchChange, Enabled: true})
	c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)

	// int 80 to float64 80.0 is not a change.
	board.Set("battery_level", float64(80))
	out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if len(out.Watches) != 0 {
		t.Errorf("change watch fired on numeric type swap: %+v", out.Watches)
	}

	c2 := NewController()
	board2 := blackboard.New()
	board2.Set("speed", float64(20))
	c2.AddWatch(Watch{Key: "speed", Condition: WatchEquals, Target: 20, Enabled: true})
	out = c2.FinishTick(core.StatusRunning, map[string]core.Status{}, board2)
	if len(out.Watches) != 1 {
		t.Errorf("equals watch did not coerce float64(20) == int(20)")
	}
}

func TestController_DisabledWatchDoesNotFire(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	board.Set("battery_level", 5)

	c.AddWatch(Watch{Key: "battery_level", Condition: WatchLess, Target: 20, Enabled: false})
	out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if len(out.Watches) != 0 {
		t.Errorf("disabled watch fired: %+v", out.Watches)
	}
}

func TestController_StepOver(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	c.SetMode(ModeStepOver, 2)

	out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if out.Pause {
		t.Fatalf("paused after 1 of 2 ticks: %+v", out)
	}
	out = c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if !out.Pause || out.Reason != "step complete" {
		t.Fatalf("expected step completion pause, got %+v", out)
	}
	if c.Mode() != ModeStepOver {
		t.Errorf("Mode = %v, want STEP_OVER retained", c.Mode())
	}
}

func TestController_StepInto(t *testing.T) {
	c := NewController()
	board := blackboard.New()

	// Seed the previous-tick statuses in NONE mode.
	c.FinishTick(core.StatusRunning, map[string]core.Status{
		"n-root": core.StatusRunning, "n-move": core.StatusRunning,
	}, board)

	c.SetMode(ModeStepInto, nil)

	// No status changed: keep running.
	out := c.FinishTick(core.StatusRunning, map[string]core.Status{
		"n-root": core.StatusRunning, "n-move": core.StatusRunning,
	}, board)
	if out.Pause {
		t.Fatalf("paused without a status change: %+v", out)
	}

	out = c.FinishTick(core.StatusSuccess, map[string]core.Status{
		"n-root": core.StatusSuccess, "n-move": core.StatusSuccess,
	}, board)
	if !out.Pause {
		t.Fatal("status change did not pause")
	}
	if out.PausedAt != "n-move" && out.PausedAt != "n-root" {
		t.Errorf("PausedAt = %q", out.PausedAt)
	}
}

func TestController_StepIntoTreatsUnknownNodesAsInvalid(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	c.SetMode(ModeStepInto, nil)

	// First tick: a node still INVALID did not change; a RUNNING one did.
	out := c.FinishTick(core.StatusRunning, map[string]core.Status{
		"n-root": core.StatusRunning, "n-later": core.StatusInvalid,
	}, board)
	if !out.Pause || out.PausedAt != "n-root" {
		t.Fatalf("expected pause at n-root, got %+v", out)
	}
}

func TestController_StepOut(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	c.SetMode(ModeStepOut, "n-parent")

	out := c.FinishTick(core.StatusRunning, map[string]core.Status{
		"n-parent": core.StatusRunning,
	}, board)
	if out.Pause {
		t.Fatalf("paused before target finished: %+v", out)
	}

	out = c.FinishTick(core.StatusRunning, map[string]core.Status{
		"n-parent": core.StatusFailure,
	}, board)
	if !out.Pause || out.PausedAt != "n-parent" {
		t.Fatalf("expected pause at n-parent, got %+v", out)
	}
}

func TestController_StepOutWithoutTargetWaitsOnRoot(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	c.SetMode(ModeStepOut, nil)

	if out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board); out.Pause {
		t.Fatalf("paused while root running: %+v", out)
	}
	if out := c.FinishTick(core.StatusSuccess, map[string]core.Status{}, board); !out.Pause {
		t.Fatal("root success did not pause")
	}
}

func TestController_ContinuePausesOnRootTerminal(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	c.SetMode(ModeContinue, nil)

	if out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board); out.Pause {
		t.Fatalf("paused while root running: %+v", out)
	}
	out := c.FinishTick(core.StatusFailure, map[string]core.Status{}, board)
	if !out.Pause {
		t.Fatal("root failure did not pause")
	}
}

func TestController_NoneModeRunsFreely(t *testing.T) {
	c := NewController()
	board := blackboard.New()

	for i := 0; i < 5; i++ {
		if out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board); out.Pause {
			t.Fatalf("tick %d paused in NONE mode: %+v", i, out)
		}
	}
	// Root finishing does not pause NONE mode either.
	if out := c.FinishTick(core.StatusSuccess, map[string]core.Status{}, board); out.Pause {
		t.Fatalf("NONE mode paused on terminal root: %+v", out)
	}
}

func TestController_BreakpointReasonWinsOverStep(t *testing.T) {
	c := NewController()
	board := blackboard.New()
	c.AddBreakpoint(Breakpoint{ID: "b-1", NodeID: "n-check", Enabled: true})
	c.SetMode(ModeStepOver, 1)

	c.OnNodeLeave("n-check", core.StatusSuccess, board)
	out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if !out.Pause {
		t.Fatal("expected pause")
	}
	if out.PausedAt != "n-check" {
		t.Errorf("PausedAt = %q, want breakpoint node", out.PausedAt)
	}
	if out.Reason == "step complete" {
		t.Errorf("Reason = %q, want the breakpoint to take precedence", out.Reason)
	}
}

func TestController_ManualPauseLandsAfterTick(t *testing.T) {
	c := NewController()
	board := blackboard.New()

	c.Pause()
	out := c.FinishTick(core.StatusRunning, map[string]core.Status{}, board)
	if !out.Pause || out.Reason != "pause requested" {
		t.Fatalf("manual pause not honored: %+v", out)
	}
}
