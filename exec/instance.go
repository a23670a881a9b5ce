package exec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bramble-labs/bramble/blackboard"
	"github.com/bramble-labs/bramble/bus"
	"github.com/bramble-labs/bramble/core"
	"github.com/bramble-labs/bramble/debug"
	"github.com/bramble-labs/bramble/history"
	"github.com/bramble-labs/bramble/hydrate"
	"github.com/bramble-labs/bramble/profile"
	"github.com/bramble-labs/bramble/snapshot"
	"github.com/bramble-labs/bramble/tree"
)

// Instance is one running behavior tree. Ticks are serialized by an
// internal mutex: a tick always runs to completion, and pauses or stops
// land between ticks, never inside one.
type Instance struct {
	id        string
	def       *tree.TreeDefinition
	root      core.Node
	ids       *hydrate.IdentityMap
	nodeTypes map[string]string
	board     *blackboard.Board
	ctrl      *debug.Controller
	prof      *profile.Profiler
	bus       bus.EventBus
	store     history.Store
	logger    *slog.Logger
	now       func() time.Time

	createdAt      time.Time
	captureDefault bool

	// tickMu serializes tick requests and on-demand captures.
	tickMu sync.Mutex

	// stateMu guards the fields below so state can be read while a tick
	// request holds tickMu.
	stateMu       sync.Mutex
	phase         Phase
	tickCount     int
	lastStatus    core.Status
	captured      bool
	auto          bool
	stopRequested bool
}

type instanceSeed struct {
	id      string
	def     *tree.TreeDefinition
	root    core.Node
	ids     *hydrate.IdentityMap
	board   *blackboard.Board
	bus     bus.EventBus
	store   history.Store
	logger  *slog.Logger
	now     func() time.Time
	capture bool
}

func newInstance(seed instanceSeed) *Instance {
	nodeTypes := make(map[string]string)
	seed.def.EachNode(func(nd *tree.NodeDefinition, _ string) {
		if nd.ID != "" {
			nodeTypes[nd.ID] = nd.Type
		}
	})

	in := &Instance{
		id:             seed.id,
		def:            seed.def,
		root:           seed.root,
		ids:            seed.ids,
		nodeTypes:      nodeTypes,
		board:          seed.board,
		ctrl:           debug.NewController(),
		bus:            seed.bus,
		store:          seed.store,
		logger:         seed.logger,
		now:            seed.now,
		createdAt:      seed.now().UTC(),
		captureDefault: seed.capture,
		phase:          PhaseReady,
		lastStatus:     core.StatusInvalid,
	}
	in.prof = profile.NewProfiler(seed.id, func(n core.Node) string {
		return in.nodeID(n)
	})
	return in
}

// ID returns the execution id.
func (in *Instance) ID() string { return in.id }

// TreeID returns the id of the definition this instance runs.
func (in *Instance) TreeID() string { return in.def.ID }

// Definition returns the definition this instance was built from.
func (in *Instance) Definition() *tree.TreeDefinition { return in.def }

// Board returns the instance's blackboard.
func (in *Instance) Board() *blackboard.Board { return in.board }

// Debug returns the instance's debug controller.
func (in *Instance) Debug() *debug.Controller { return in.ctrl }

// Profile returns the instance's profiler.
func (in *Instance) Profile() *profile.Profiler { return in.prof }

// History returns a view over this execution's captured snapshots.
func (in *Instance) History() *HistoryView {
	return &HistoryView{executionID: in.id, store: in.store}
}

// CreatedAt returns when the instance was created.
func (in *Instance) CreatedAt() time.Time { return in.createdAt }

// CaptureDefault reports whether every tick records a snapshot even when
// the tick request does not ask for one.
func (in *Instance) CaptureDefault() bool { return in.captureDefault }

// Phase returns the current lifecycle state.
func (in *Instance) Phase() Phase {
	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	return in.phase
}

// TickCount returns how many ticks have run.
func (in *Instance) TickCount() int {
	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	return in.tickCount
}

// RootStatus returns the root's status after the most recent tick.
func (in *Instance) RootStatus() core.Status {
	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	return in.lastStatus
}

// SetAuto marks the instance as driven by a schedule. Captured snapshots
// report IsRunning while the flag is set.
func (in *Instance) SetAuto(auto bool) {
	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	in.auto = auto
}

// Auto reports whether a schedule drives this instance.
func (in *Instance) Auto() bool {
	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	return in.auto
}

// Tick advances the tree. Updates are applied to the blackboard first,
// then the whole tree evaluates once per requested count. Each tick is
// atomic; the debug controller is consulted on every boundary and a
// landed pause stops the loop early. Context cancellation is honored
// between ticks only, by not issuing the next one.
func (in *Instance) Tick(ctx context.Context, req TickRequest) (*TickResult, error) {
	in.tickMu.Lock()
	defer in.tickMu.Unlock()

	in.stateMu.Lock()
	switch in.phase {
	case PhaseStopped:
		in.stateMu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrStopped, in.id)
	case PhasePaused:
		in.stateMu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPaused, in.id)
	}
	in.phase = PhaseTicking
	in.stateMu.Unlock()

	count := req.Count
	if count <= 0 {
		count = 1
	}
	if len(req.Updates) > 0 {
		in.board.Apply(req.Updates)
	}
	capture := req.Capture || in.captureDefault

	res := &TickResult{}
	for i := 0; i < count; i++ {
		if ctx.Err() != nil && i > 0 {
			break
		}

		more := i < count-1
		outcome := in.tickOnce(ctx, capture, more, res)

		if outcome.Pause {
			in.stateMu.Lock()
			in.phase = PhasePaused
			in.stateMu.Unlock()
			res.Paused = true
			res.PauseReason = outcome.Reason
			in.publish(bus.NewEvent(bus.EventExecutionPaused, in.id).
				WithTree(in.def.ID).
				WithTick(res.TickCount).
				WithPayload("reason", outcome.Reason).
				WithPayload("paused_at_node", outcome.PausedAt))
			break
		}

		in.stateMu.Lock()
		stop := in.stopRequested
		in.stateMu.Unlock()
		if stop {
			break
		}
	}

	in.stateMu.Lock()
	if in.phase == PhaseTicking {
		in.phase = PhaseReady
	}
	res.TickCount = in.tickCount
	res.RootStatus = in.lastStatus
	in.stateMu.Unlock()

	return res, nil
}

// tickOnce runs a single whole-tree evaluation and its bookkeeping.
// The caller holds tickMu.
func (in *Instance) tickOnce(ctx context.Context, capture, more bool, res *TickResult) debug.Outcome {
	in.stateMu.Lock()
	in.tickCount++
	tick := in.tickCount
	auto := in.auto
	in.stateMu.Unlock()

	startedAt := in.now()
	in.publish(bus.NewEvent(bus.EventTickStarted, in.id).
		WithTree(in.def.ID).
		WithTick(tick))

	t := core.NewTick(ctx, in.board, in.prof, core.VisitorFuncs{
		OnLeave: func(n core.Node, status core.Status) {
			id := in.nodeID(n)
			in.ctrl.OnNodeLeave(id, status, in.board)
			in.publish(bus.NewEvent(bus.EventNodeTicked, in.id).
				WithTree(in.def.ID).
				WithNode(id).
				WithTick(tick).
				WithStatus(status).
				WithPayload("node_type", in.nodeTypes[id]))
		},
	})
	status := in.root.Tick(t)

	outcome := in.ctrl.FinishTick(status, in.statuses(), in.board)
	if in.prof.Active() {
		in.prof.ObserveTick(tick)
	}

	in.stateMu.Lock()
	in.lastStatus = status
	in.stateMu.Unlock()

	in.publish(bus.NewEvent(bus.EventTickCompleted, in.id).
		WithTree(in.def.ID).
		WithTick(tick).
		WithStatus(status).
		WithElapsed(in.now().Sub(startedAt)))

	for _, bp := range outcome.Breakpoints {
		in.publish(bus.NewEvent(bus.EventBreakpointHit, in.id).
			WithTree(in.def.ID).
			WithNode(bp.NodeID).
			WithTick(tick).
			WithPayload("breakpoint_id", bp.ID).
			WithPayload("hit_count", bp.HitCount))
	}
	for _, w := range outcome.Watches {
		in.publish(bus.NewEvent(bus.EventWatchTriggered, in.id).
			WithTree(in.def.ID).
			WithTick(tick).
			WithPayload("watch_id", w.ID).
			WithPayload("key", w.Key).
			WithPayload("condition", string(w.Condition)).
			WithPayload("hit_count", w.HitCount))
	}

	if capture {
		snap := in.captureLocked(tick, (more && !outcome.Pause) || auto)
		res.Snapshot = snap
		if in.store != nil {
			if err := in.store.Append(ctx, snap); err != nil {
				in.logger.Error("snapshot append failed",
					"execution_id", in.id,
					"tick", tick,
					"error", err)
			}
		}
		in.stateMu.Lock()
		in.captured = true
		in.stateMu.Unlock()
		in.publish(bus.NewEvent(bus.EventSnapshotCaptured, in.id).
			WithTree(in.def.ID).
			WithTick(tick).
			WithStatus(status))
	}

	res.Ticks++
	res.TickCount = tick
	res.RootStatus = status
	return outcome
}

// Snapshot captures the current tree state without ticking or recording
// to history.
func (in *Instance) Snapshot() *snapshot.ExecutionSnapshot {
	in.tickMu.Lock()
	defer in.tickMu.Unlock()

	in.stateMu.Lock()
	tick := in.tickCount
	auto := in.auto
	in.stateMu.Unlock()
	return in.captureLocked(tick, auto)
}

// captureLocked builds a snapshot. The caller holds tickMu.
func (in *Instance) captureLocked(tick int, running bool) *snapshot.ExecutionSnapshot {
	return snapshot.Capture(snapshot.Input{
		ExecutionID: in.id,
		TreeID:      in.def.ID,
		TreeVersion: in.def.Metadata.Version,
		TickCount:   tick,
		Root:        in.root,
		IDs:         in.ids,
		Board:       in.board,
		Mode:        string(in.ctrl.Mode()),
		IsRunning:   running,
		Now:         in.now(),
	})
}

// Pause requests a manual pause. An idle instance pauses immediately; a
// ticking one pauses at the next tick boundary.
func (in *Instance) Pause() error {
	in.ctrl.Pause()

	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	switch in.phase {
	case PhaseStopped:
		return fmt.Errorf("%w: %s", ErrStopped, in.id)
	case PhaseReady:
		in.phase = PhasePaused
		in.publish(bus.NewEvent(bus.EventExecutionPaused, in.id).
			WithTree(in.def.ID).
			WithTick(in.tickCount).
			WithPayload("reason", "pause requested"))
	}
	return nil
}

// Resume clears any pause and returns the instance to READY.
func (in *Instance) Resume() error {
	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	if in.phase == PhaseStopped {
		return fmt.Errorf("%w: %s", ErrStopped, in.id)
	}

	in.ctrl.Resume()
	if in.phase == PhasePaused {
		in.phase = PhaseReady
		in.publish(bus.NewEvent(bus.EventExecutionResumed, in.id).
			WithTree(in.def.ID).
			WithTick(in.tickCount))
	}
	return nil
}

// SetStepMode arms a step mode on the debug controller and resumes a
// paused instance so the next tick request can satisfy it. A STEP_OUT
// without an explicit target resolves to the parent of the node the
// instance is paused at.
func (in *Instance) SetStepMode(mode debug.Mode, arg any) error {
	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	if in.phase == PhaseStopped {
		return fmt.Errorf("%w: %s", ErrStopped, in.id)
	}

	if mode == debug.ModeStepOut && arg == nil {
		if pausedAt := in.ctrl.State().PausedAtNode; pausedAt != "" {
			arg = in.parentOf(pausedAt)
		}
	}
	if err := in.ctrl.SetMode(mode, arg); err != nil {
		return err
	}

	if in.phase == PhasePaused {
		in.phase = PhaseReady
		in.publish(bus.NewEvent(bus.EventExecutionResumed, in.id).
			WithTree(in.def.ID).
			WithTick(in.tickCount).
			WithPayload("mode", string(mode)))
	}
	return nil
}

// Stop terminates the instance. A ticking instance finishes its current
// tick first. Stop is idempotent.
func (in *Instance) Stop() error {
	in.stateMu.Lock()
	if in.phase == PhaseStopped {
		in.stateMu.Unlock()
		return nil
	}
	in.stopRequested = true
	in.stateMu.Unlock()

	// Wait for any in-flight tick request to observe the stop.
	in.tickMu.Lock()
	defer in.tickMu.Unlock()

	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	if in.phase == PhaseStopped {
		return nil
	}
	in.phase = PhaseStopped
	in.publish(bus.NewEvent(bus.EventExecutionStopped, in.id).
		WithTree(in.def.ID).
		WithTick(in.tickCount).
		WithStatus(in.lastStatus))
	return nil
}

// statuses maps every node in the tree (including INVALID ones) to its
// status for the debug controller's whole-tree comparison.
func (in *Instance) statuses() map[string]core.Status {
	m := make(map[string]core.Status)
	core.Walk(in.root, func(n core.Node) bool {
		m[in.nodeID(n)] = n.Status()
		return true
	})
	return m
}

// nodeID resolves a runtime node to its definition id.
func (in *Instance) nodeID(n core.Node) string {
	return resolveNodeID(in.ids, n)
}

// parentOf returns the definition id of nodeID's parent, or "" for the
// root and unknown nodes.
func (in *Instance) parentOf(nodeID string) string {
	target, ok := in.ids.NodeOf(nodeID)
	if !ok {
		return ""
	}
	var parentID string
	core.Walk(in.root, func(n core.Node) bool {
		for _, child := range n.Children() {
			if child == target {
				parentID = in.nodeID(n)
				return false
			}
		}
		return true
	})
	return parentID
}

func (in *Instance) publish(event bus.Event) {
	if in.bus == nil {
		return
	}
	in.bus.Publish(event)
}
