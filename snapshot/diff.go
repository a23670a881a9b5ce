package snapshot

import (
	"reflect"
	"sort"
)

// ChangeKind classifies what part of a snapshot a Change touches.
type ChangeKind string

const (
	// ChangeStatus covers execution-level deltas: tick count and root status.
	ChangeStatus ChangeKind = "status"

	// ChangeNode covers per-node state deltas, keyed by node id.
	ChangeNode ChangeKind = "node"

	// ChangeBlackboard covers blackboard value deltas, keyed by key.
	ChangeBlackboard ChangeKind = "blackboard"
)

// Change is one delta between two snapshots. Old is nil for additions and
// New is nil for removals.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Path string     `json:"path"`
	Old  any        `json:"old,omitempty"`
	New  any        `json:"new,omitempty"`
}

// Diff compares two snapshots of the same execution and returns only what
// changed between them: execution-level deltas first, then node states in
// id order, then blackboard entries in key order. A nil old snapshot makes
// every entry of new an addition. Returns nil when nothing changed.
func Diff(old, new *ExecutionSnapshot) []Change {
	if new == nil {
		return nil
	}

	var changes []Change

	oldTick, oldRoot := 0, ""
	var oldStates map[string]NodeState
	var oldBoard map[string]any
	if old != nil {
		oldTick = old.TickCount
		oldRoot = string(old.RootStatus)
		oldStates = old.NodeStates
		oldBoard = old.Blackboard
	}

	if oldTick != new.TickCount {
		changes = append(changes, Change{Kind: ChangeStatus, Path: "tick_count", Old: oldTick, New: new.TickCount})
	}
	if oldRoot != string(new.RootStatus) {
		var o any
		if old != nil {
			o = old.RootStatus
		}
		changes = append(changes, Change{Kind: ChangeStatus, Path: "root_status", Old: o, New: new.RootStatus})
	}

	for _, id := range sortedKeys(oldStates, new.NodeStates) {
		before, hadBefore := oldStates[id]
		after, hasAfter := new.NodeStates[id]
		switch {
		case !hadBefore:
			changes = append(changes, Change{Kind: ChangeNode, Path: id, New: after})
		case !hasAfter:
			changes = append(changes, Change{Kind: ChangeNode, Path: id, Old: before})
		case before != after:
			changes = append(changes, Change{Kind: ChangeNode, Path: id, Old: before, New: after})
		}
	}

	for _, key := range sortedKeys(oldBoard, new.Blackboard) {
		before, hadBefore := oldBoard[key]
		after, hasAfter := new.Blackboard[key]
		switch {
		case !hadBefore:
			changes = append(changes, Change{Kind: ChangeBlackboard, Path: key, New: after})
		case !hasAfter:
			changes = append(changes, Change{Kind: ChangeBlackboard, Path: key, Old: before})
		case !reflect.DeepEqual(before, after):
			changes = append(changes, Change{Kind: ChangeBlackboard, Path: key, Old: before, New: after})
		}
	}

	return changes
}

// sortedKeys returns the union of both maps' keys in sorted order.
func sortedKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
