package behavior

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/bramble-labs/bramble/blackboard"
	"github.com/bramble-labs/bramble/core"
)

func TestCondition(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		op    CompareOp
		value any
		board map[string]any
		want  core.Status
	}{
		{name: "less than holds", key: "battery_level", op: OpLt, value: 20, board: map[string]any{"battery_level": 15}, want: core.StatusSuccess},
		{name: "less than fails", key: "battery_level", op: OpLt, value: 20, board: map[string]any{"battery_level": 25}, want: core.StatusFailure},
		{name: "numeric coercion", key: "battery_level", op: OpEq, value: 20, board: map[string]any{"battery_level": 20.0}, want: core.StatusSuccess},
		{name: "not equal", key: "mode", op: OpNe, value: "idle", board: map[string]any{"mode": "active"}, want: core.StatusSuccess},
		{name: "greater equal", key: "n", op: OpGe, value: 3, board: map[string]any{"n": 3}, want: core.StatusSuccess},
		{name: "missing key fails", key: "absent", op: OpEq, value: 1, board: nil, want: core.StatusFailure},
		{name: "exists holds", key: "mode", op: OpExists, value: nil, board: map[string]any{"mode": "active"}, want: core.StatusSuccess},
		{name: "exists fails", key: "absent", op: OpExists, value: nil, board: nil, want: core.StatusFailure},
		{name: "incomparable fails", key: "mode", op: OpLt, value: 5, board: map[string]any{"mode": "active"}, want: core.StatusFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := blackboard.New()
			board.Apply(tt.board)
			cond := NewCondition("cond", tt.key, tt.op, tt.value)

			got := cond.Tick(core.NewTick(context.Background(), board))
			if got != tt.want {
				t.Errorf("status = %v, want %v (feedback: %s)", got, tt.want, cond.Feedback())
			}
		})
	}
}

func TestWrite(t *testing.T) {
	board := blackboard.New()
	w := NewWrite("w", "mode", "active")

	if got := w.Tick(core.NewTick(context.Background(), board)); got != core.StatusSuccess {
		t.Fatalf("status = %v, want SUCCESS", got)
	}
	v, ok := board.Get("mode")
	if !ok || v != "active" {
		t.Errorf("board[mode] = %v, want %q", v, "active")
	}
}

func TestCounter(t *testing.T) {
	board := blackboard.New()
	board.Set("battery_level", 100)
	c := NewCounter("drain", "battery_level", -5)
	tick := func() { c.Tick(core.NewTick(context.Background(), board)) }

	tick()
	tick()

	v, _ := board.Get("battery_level")
	f, ok := blackboard.AsFloat(v)
	if !ok || f != 90 {
		t.Errorf("battery_level = %v, want 90", v)
	}
}

func TestCounterStartsFromZero(t *testing.T) {
	board := blackboard.New()
	c := NewCounter("c", "visits", 1)
	c.Tick(core.NewTick(context.Background(), board))

	v, _ := board.Get("visits")
	if f, _ := blackboard.AsFloat(v); f != 1 {
		t.Errorf("visits = %v, want 1", v)
	}
}

func TestWait(t *testing.T) {
	w := NewWait("w", 2)

	if got := w.Tick(newTestTick(t)); got != core.StatusRunning {
		t.Fatalf("tick 1 status = %v, want RUNNING", got)
	}
	if got := w.Tick(newTestTick(t)); got != core.StatusRunning {
		t.Fatalf("tick 2 status = %v, want RUNNING", got)
	}
	if got := w.Tick(newTestTick(t)); got != core.StatusSuccess {
		t.Fatalf("tick 3 status = %v, want SUCCESS", got)
	}

	w.Reset()
	if got := w.Tick(newTestTick(t)); got != core.StatusRunning {
		t.Errorf("status after reset = %v, want RUNNING", got)
	}
}

func TestIdle(t *testing.T) {
	idle := NewIdle("idle")
	if got := tickN(t, idle, 3); got != core.StatusRunning {
		t.Errorf("status = %v, want RUNNING", got)
	}
}

func TestAlways(t *testing.T) {
	if got := NewAlways("ok", core.StatusSuccess).Tick(newTestTick(t)); got != core.StatusSuccess {
		t.Errorf("status = %v, want SUCCESS", got)
	}
	if got := NewAlways("no", core.StatusFailure).Tick(newTestTick(t)); got != core.StatusFailure {
		t.Errorf("status = %v, want FAILURE", got)
	}
}

func TestLog(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := NewLog("l", "entering recovery", "warn", logger)

	if got := l.Tick(newTestTick(t)); got != core.StatusSuccess {
		t.Errorf("status = %v, want SUCCESS", got)
	}
	if l.Level() != "warn" {
		t.Errorf("Level() = %q, want %q", l.Level(), "warn")
	}
}
