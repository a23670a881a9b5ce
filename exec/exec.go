// Package exec runs built behavior trees. A Service owns a table of
// independent execution instances; each instance ticks its tree
// synchronously, captures snapshots into history, consults its debug
// controller on every tick boundary, and publishes events to the bus.
package exec

import (
	"errors"

	"github.com/bramble-labs/bramble/core"
	"github.com/bramble-labs/bramble/snapshot"
)

var (
	// ErrExecutionNotFound is returned for unknown execution ids.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrPaused is returned when a paused instance is asked to tick.
	ErrPaused = errors.New("execution is paused")

	// ErrStopped is returned when a stopped instance is asked to do
	// anything but report state.
	ErrStopped = errors.New("execution is stopped")
)

// Phase is an execution instance's lifecycle state.
type Phase string

const (
	// PhaseCreated is the transient state while Create builds the tree.
	PhaseCreated Phase = "CREATED"

	// PhaseReady means the instance accepts ticks.
	PhaseReady Phase = "READY"

	// PhaseTicking means a tick request is currently evaluating the tree.
	PhaseTicking Phase = "TICKING"

	// PhasePaused means the debug controller halted the instance; tick
	// requests are rejected until it is resumed.
	PhasePaused Phase = "PAUSED"

	// PhaseStopped is terminal.
	PhaseStopped Phase = "STOPPED"
)

// TickRequest asks an instance to advance.
type TickRequest struct {
	// Count is the number of whole-tree evaluations to run (default 1).
	Count int

	// Updates are applied to the blackboard before the first tick.
	Updates map[string]any

	// Capture records a snapshot into history after every tick.
	Capture bool
}

// TickResult reports what a tick request did.
type TickResult struct {
	// Ticks actually executed; fewer than requested when a pause landed.
	Ticks int

	// TickCount is the instance's total tick counter afterwards.
	TickCount int

	// RootStatus is the root's status after the last tick.
	RootStatus core.Status

	// Paused is true when the debug controller halted the instance.
	Paused bool

	// PauseReason explains the halt ("breakpoint b-1 at node n-move", ...).
	PauseReason string

	// Snapshot is the last captured snapshot, nil unless Capture was set.
	Snapshot *snapshot.ExecutionSnapshot
}
