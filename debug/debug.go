// Package debug provides per-execution debugging: step modes that bound how
// far an execution runs between pauses, breakpoints on node evaluations, and
// watches over blackboard keys. Ticks are atomic; every pause lands on a
// tick boundary.
package debug

import (
	"errors"

	"github.com/bramble-labs/bramble/blackboard"
)

// Debugging errors.
var (
	ErrBreakpointNotFound = errors.New("breakpoint not found")
	ErrWatchNotFound      = errors.New("watch not found")
)

// Mode is the step discipline applied between ticks.
type Mode string

const (
	// ModeNone runs freely; only breakpoints, watches, and manual pauses
	// stop the execution.
	ModeNone Mode = "NONE"

	// ModeStepOver executes a fixed number of ticks and then pauses.
	ModeStepOver Mode = "STEP_OVER"

	// ModeStepInto runs until any node's status changes from its value on
	// the previous tick, then pauses.
	ModeStepInto Mode = "STEP_INTO"

	// ModeStepOut runs until a chosen node (the parent of the node the
	// execution paused at) reaches a terminal status, then pauses.
	ModeStepOut Mode = "STEP_OUT"

	// ModeContinue runs until a breakpoint or watch fires or the root
	// reaches a terminal status.
	ModeContinue Mode = "CONTINUE"
)

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeNone, ModeStepOver, ModeStepInto, ModeStepOut, ModeContinue:
		return true
	}
	return false
}

// Predicate is a condition over the current blackboard, used to make a
// breakpoint conditional. Op is one of eq, ne, gt, lt, ge, le, exists;
// empty means eq.
type Predicate struct {
	Key   string `json:"key"`
	Op    string `json:"op,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Eval reports whether the predicate holds on the board. Missing keys and
// incomparable values evaluate to false.
func (p Predicate) Eval(board *blackboard.Board) bool {
	if board == nil {
		return false
	}
	value, ok := board.Get(p.Key)
	if p.Op == "exists" {
		return ok
	}
	if !ok {
		return false
	}

	switch p.Op {
	case "eq", "":
		return blackboard.Equal(value, p.Value)
	case "ne":
		return !blackboard.Equal(value, p.Value)
	case "gt", "lt", "ge", "le":
		cmp, ok := blackboard.Compare(value, p.Value)
		if !ok {
			return false
		}
		switch p.Op {
		case "gt":
			return cmp > 0
		case "lt":
			return cmp < 0
		case "ge":
			return cmp >= 0
		default:
			return cmp <= 0
		}
	}
	return false
}
