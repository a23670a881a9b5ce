package debug

import (
	"testing"

	"github.com/bramble-labs/bramble/blackboard"
)

func TestMode_Valid(t *testing.T) {
	for _, m := range []Mode{ModeNone, ModeStepOver, ModeStepInto, ModeStepOut, ModeContinue} {
		if !m.Valid() {
			t.Errorf("%v reported invalid", m)
		}
	}
	if Mode("TURBO").Valid() {
		t.Error("TURBO reported valid")
	}
}

func TestPredicate_Eval(t *testing.T) {
	board := blackboard.New()
	board.Set("battery_level", 42)
	board.Set("target", "dock")

	tests := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"eq number", Predicate{Key: "battery_level", Op: "eq", Value: 42}, true},
		{"eq default op", Predicate{Key: "target", Value: "dock"}, true},
		{"eq mismatch", Predicate{Key: "target", Op: "eq", Value: "hall"}, false},
		{"ne", Predicate{Key: "target", Op: "ne", Value: "hall"}, true},
		{"gt", Predicate{Key: "battery_level", Op: "gt", Value: 40}, true},
		{"gt false", Predicate{Key: "battery_level", Op: "gt", Value: 42}, false},
		{"lt coerces float", Predicate{Key: "battery_level", Op: "lt", Value: 42.5}, true},
		{"ge", Predicate{Key: "battery_level", Op: "ge", Value: 42}, true},
		{"le", Predicate{Key: "battery_level", Op: "le", Value: 41}, false},
		{"exists", Predicate{Key: "target", Op: "exists"}, true},
		{"exists missing", Predicate{Key: "pose", Op: "exists"}, false},
		{"missing key", Predicate{Key: "pose", Op: "eq", Value: 1}, false},
		{"incomparable", Predicate{Key: "target", Op: "gt", Value: 3}, false},
		{"unknown op", Predicate{Key: "battery_level", Op: "between", Value: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Eval(board); got != tt.want {
				t.Errorf("Eval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredicate_EvalNilBoard(t *testing.T) {
	p := Predicate{Key: "battery_level", Op: "exists"}
	if p.Eval(nil) {
		t.Error("predicate held on a nil board")
	}
}
