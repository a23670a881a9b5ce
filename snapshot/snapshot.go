// Package snapshot captures immutable per-tick records of an execution:
// every node's state, the blackboard contents and metadata, and where in
// the tree evaluation currently sits.
package snapshot

import (
	"fmt"
	"time"

	"github.com/bramble-labs/bramble/blackboard"
	"github.com/bramble-labs/bramble/core"
	"github.com/bramble-labs/bramble/hydrate"
)

// NodeState is one node's contribution to a snapshot.
type NodeState struct {
	Status         core.Status `json:"status"`
	Feedback       string      `json:"feedback_message,omitempty"`
	IsCurrentChild bool        `json:"is_current_child,omitempty"`
	IsTip          bool        `json:"is_tip,omitempty"`
}

// ExecutionSnapshot is the full observable state of an execution after a
// tick. Snapshots are created once and never mutated; history stores hand
// them out as-is.
type ExecutionSnapshot struct {
	ExecutionID    string                            `json:"execution_id"`
	TreeID         string                            `json:"tree_id,omitempty"`
	TreeVersion    string                            `json:"tree_version,omitempty"`
	TickCount      int                               `json:"tick_count"`
	RootStatus     core.Status                       `json:"root_status"`
	TipNodeID      string                            `json:"tip_node_id,omitempty"`
	NodeStates     map[string]NodeState              `json:"node_states"`
	Blackboard     map[string]any                    `json:"blackboard,omitempty"`
	BlackboardMeta map[string]blackboard.KeyMetadata `json:"blackboard_metadata,omitempty"`
	Timestamp      time.Time                         `json:"timestamp"`
	Mode           string                            `json:"mode,omitempty"`
	IsRunning      bool                              `json:"is_running"`
}

// Input carries everything Capture reads. Now defaults to time.Now when
// zero so tests can pin timestamps.
type Input struct {
	ExecutionID string
	TreeID      string
	TreeVersion string
	TickCount   int
	Root        core.Node
	IDs         *hydrate.IdentityMap
	Board       *blackboard.Board
	Mode        string
	IsRunning   bool
	Now         time.Time
}

// Capture walks the whole tree once and records its state. Blackboard
// values are deep-copied, so later ticks cannot reach into the snapshot.
func Capture(in Input) *ExecutionSnapshot {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	snap := &ExecutionSnapshot{
		ExecutionID: in.ExecutionID,
		TreeID:      in.TreeID,
		TreeVersion: in.TreeVersion,
		TickCount:   in.TickCount,
		NodeStates:  make(map[string]NodeState),
		Timestamp:   now,
		Mode:        in.Mode,
		IsRunning:   in.IsRunning,
	}

	if in.Board != nil {
		snap.Blackboard = in.Board.Snapshot()
		snap.BlackboardMeta = in.Board.Metadata()
	}
	if in.Root == nil {
		return snap
	}

	snap.RootStatus = in.Root.Status()

	tip := core.Tip(in.Root)

	seq := 0
	var walk func(n core.Node, isCurrentChild bool)
	walk = func(n core.Node, isCurrentChild bool) {
		id := nodeID(in.IDs, n, seq)
		seq++
		snap.NodeStates[id] = NodeState{
			Status:         n.Status(),
			Feedback:       n.Feedback(),
			IsCurrentChild: isCurrentChild,
			IsTip:          n == tip,
		}
		if n == tip {
			snap.TipNodeID = id
		}

		current := -1
		if c, ok := n.(core.Composite); ok {
			current = c.CurrentChild()
		}
		for i, child := range n.Children() {
			walk(child, i == current)
		}
	}
	walk(in.Root, false)

	return snap
}

// nodeID names a node for the snapshot: the identity map's id when bound,
// otherwise a deterministic positional fallback for hand-built trees.
func nodeID(ids *hydrate.IdentityMap, n core.Node, seq int) string {
	if ids != nil {
		if id, ok := ids.IDOf(n); ok {
			return id
		}
	}
	return fmt.Sprintf("%s#%d", n.Type(), seq)
}
