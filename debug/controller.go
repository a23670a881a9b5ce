package debug

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bramble-labs/bramble/blackboard"
	"github.com/bramble-labs/bramble/core"
)

// Breakpoint pauses the execution after the tick in which its node was
// evaluated. The optional Condition makes the hit conditional on the
// blackboard at evaluation time. Breakpoints are checked in every mode.
type Breakpoint struct {
	ID        string     `json:"id"`
	NodeID    string     `json:"node_id"`
	Condition *Predicate `json:"condition,omitempty"`
	HitCount  int        `json:"hit_count"`
	Enabled   bool       `json:"enabled"`
}

// State is a point-in-time copy of a controller's debug state.
type State struct {
	Mode         Mode         `json:"mode"`
	Paused       bool         `json:"paused"`
	PausedAtNode string       `json:"paused_at_node,omitempty"`
	PauseReason  string       `json:"pause_reason,omitempty"`
	Breakpoints  []Breakpoint `json:"breakpoints"`
	Watches      []Watch      `json:"watches"`
}

// Outcome is FinishTick's verdict for one tick: whether the execution
// should pause before the next one, and which breakpoints and watches
// fired during the pass.
type Outcome struct {
	Pause       bool
	Reason      string
	PausedAt    string
	Breakpoints []Breakpoint
	Watches     []Watch
}

// Controller tracks the debug state of one execution. The execution reports
// node evaluations to OnNodeLeave during a tick and calls FinishTick after
// each full pass; the returned Outcome says whether to stop ticking.
// All methods are safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	mode        Mode
	stepTicks   int    // remaining ticks for STEP_OVER
	stepOutNode string // node STEP_OUT waits on; empty means the root

	paused      bool
	pausedAt    string
	pauseReason string

	breakpoints map[string]*Breakpoint
	bpOrder     []string
	watches     map[string]*Watch
	watchOrder  []string
	watchStates map[string]*watchState

	lastStatuses map[string]core.Status
	tickHits     []Breakpoint
}

// NewController creates a controller in NONE mode.
func NewController() *Controller {
	return &Controller{
		mode:        ModeNone,
		breakpoints: make(map[string]*Breakpoint),
		watches:     make(map[string]*Watch),
		watchStates: make(map[string]*watchState),
	}
}

// SetMode arms a step mode and clears any pause so ticking can resume.
// For STEP_OVER arg is the tick count (numbers accepted, default 1). For
// STEP_OUT arg is the node id whose terminal status ends the run, usually
// the parent of the node the execution paused at; empty waits on the root.
func (c *Controller) SetMode(mode Mode, arg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch mode {
	case ModeNone, ModeStepInto, ModeContinue:
	case ModeStepOver:
		ticks := 1
		switch n := arg.(type) {
		case nil:
		case int:
			ticks = n
		case float64:
			// JSON bodies decode numbers as float64.
			ticks = int(n)
		default:
			return fmt.Errorf("step over: tick count must be a number, got %T", arg)
		}
		if ticks < 1 {
			ticks = 1
		}
		c.stepTicks = ticks
	case ModeStepOut:
		node, ok := arg.(string)
		if !ok && arg != nil {
			return fmt.Errorf("step out: target must be a node id, got %T", arg)
		}
		c.stepOutNode = node
	default:
		return fmt.Errorf("unknown step mode %q", mode)
	}

	c.mode = mode
	c.paused = false
	c.pausedAt = ""
	c.pauseReason = ""
	return nil
}

// Mode returns the active step mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Pause requests a manual pause. It takes effect immediately between ticks,
// or once the in-flight tick completes.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	c.pauseReason = "pause requested"
}

// Resume clears the pause and returns the mode to NONE.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	c.pausedAt = ""
	c.pauseReason = ""
	c.mode = ModeNone
	c.stepTicks = 0
	c.stepOutNode = ""
}

// Paused reports whether the execution is currently paused.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// State returns a copy of the controller's debug state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Mode:         c.mode,
		Paused:       c.paused,
		PausedAtNode: c.pausedAt,
		PauseReason:  c.pauseReason,
		Breakpoints:  c.breakpointsLocked(),
		Watches:      c.watchesLocked(),
	}
}

// AddBreakpoint registers a breakpoint, minting an id when none is given.
// HitCount always starts at zero.
func (c *Controller) AddBreakpoint(bp Breakpoint) Breakpoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	if bp.ID == "" {
		bp.ID = uuid.NewString()
	}
	bp.HitCount = 0

	if _, exists := c.breakpoints[bp.ID]; !exists {
		c.bpOrder = append(c.bpOrder, bp.ID)
	}
	stored := bp
	c.breakpoints[bp.ID] = &stored
	return bp
}

// RemoveBreakpoint deletes a breakpoint by id.
func (c *Controller) RemoveBreakpoint(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.breakpoints[id]; !ok {
		return fmt.Errorf("%w: %s", ErrBreakpointNotFound, id)
	}
	delete(c.breakpoints, id)
	c.bpOrder = removeID(c.bpOrder, id)
	return nil
}

// Breakpoints returns copies of all breakpoints in registration order.
func (c *Controller) Breakpoints() []Breakpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.breakpointsLocked()
}

func (c *Controller) breakpointsLocked() []Breakpoint {
	out := make([]Breakpoint, 0, len(c.bpOrder))
	for _, id := range c.bpOrder {
		out = append(out, *c.breakpoints[id])
	}
	return out
}

// AddWatch registers a watch, minting an id when none is given. An empty
// condition means CHANGE. HitCount always starts at zero.
func (c *Controller) AddWatch(w Watch) Watch {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Condition == "" {
		w.Condition = WatchChange
	}
	w.HitCount = 0

	if _, exists := c.watches[w.ID]; !exists {
		c.watchOrder = append(c.watchOrder, w.ID)
	}
	stored := w
	c.watches[w.ID] = &stored
	c.watchStates[w.ID] = &watchState{}
	return w
}

// RemoveWatch deletes a watch by id.
func (c *Controller) RemoveWatch(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.watches[id]; !ok {
		return fmt.Errorf("%w: %s", ErrWatchNotFound, id)
	}
	delete(c.watches, id)
	delete(c.watchStates, id)
	c.watchOrder = removeID(c.watchOrder, id)
	return nil
}

// Watches returns copies of all watches in registration order.
func (c *Controller) Watches() []Watch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchesLocked()
}

func (c *Controller) watchesLocked() []Watch {
	out := make([]Watch, 0, len(c.watchOrder))
	for _, id := range c.watchOrder {
		out = append(out, *c.watches[id])
	}
	return out
}

// OnNodeLeave records breakpoint hits for a node evaluation within a tick.
// The execution calls it from its tick visitor; the pause itself happens in
// FinishTick so the tick always completes.
func (c *Controller) OnNodeLeave(nodeID string, _ core.Status, board *blackboard.Board) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.bpOrder {
		bp := c.breakpoints[id]
		if !bp.Enabled || bp.NodeID != nodeID {
			continue
		}
		if bp.Condition != nil && !bp.Condition.Eval(board) {
			continue
		}
		bp.HitCount++
		c.tickHits = append(c.tickHits, *bp)
	}
}

// FinishTick evaluates watches and the step mode after a completed tick.
// statuses maps every node id to its post-tick status; the controller keeps
// the map for the next tick's comparisons, so callers must pass a fresh one
// each time.
func (c *Controller) FinishTick(rootStatus core.Status, statuses map[string]core.Status, board *blackboard.Board) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Outcome{Breakpoints: c.tickHits}
	c.tickHits = nil

	for _, id := range c.watchOrder {
		w := c.watches[id]
		if !w.Enabled {
			continue
		}
		if evaluateWatch(w, c.watchStates[id], board) {
			w.HitCount++
			out.Watches = append(out.Watches, *w)
		}
	}

	modePause, modeAt, modeReason := c.applyMode(rootStatus, statuses)

	switch {
	case len(out.Breakpoints) > 0:
		bp := out.Breakpoints[0]
		out.Pause = true
		out.PausedAt = bp.NodeID
		out.Reason = fmt.Sprintf("breakpoint %s at node %s", bp.ID, bp.NodeID)
	case len(out.Watches) > 0:
		w := out.Watches[0]
		out.Pause = true
		out.Reason = fmt.Sprintf("watch %s on key %s", w.ID, w.Key)
	case c.paused:
		out.Pause = true
		out.Reason = c.pauseReason
	case modePause:
		out.Pause = true
		out.PausedAt = modeAt
		out.Reason = modeReason
	}

	c.lastStatuses = statuses

	if out.Pause {
		c.paused = true
		c.pausedAt = out.PausedAt
		c.pauseReason = out.Reason
	}
	return out
}

// applyMode advances mode-specific bookkeeping for the finished tick and
// reports whether the mode asks for a pause.
func (c *Controller) applyMode(rootStatus core.Status, statuses map[string]core.Status) (bool, string, string) {
	switch c.mode {
	case ModeStepOver:
		c.stepTicks--
		if c.stepTicks <= 0 {
			return true, "", "step complete"
		}
	case ModeStepInto:
		ids := make([]string, 0, len(statuses))
		for id := range statuses {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			prev, ok := c.lastStatuses[id]
			if !ok {
				prev = core.StatusInvalid
			}
			if statuses[id] != prev {
				return true, id, fmt.Sprintf("node %s changed to %s", id, statuses[id])
			}
		}
	case ModeStepOut:
		if c.stepOutNode == "" {
			if rootStatus.Terminal() {
				return true, "", fmt.Sprintf("root finished with %s", rootStatus)
			}
		} else if statuses[c.stepOutNode].Terminal() {
			return true, c.stepOutNode, fmt.Sprintf("node %s finished with %s", c.stepOutNode, statuses[c.stepOutNode])
		}
	case ModeContinue:
		if rootStatus.Terminal() {
			return true, "", fmt.Sprintf("root finished with %s", rootStatus)
		}
	}
	return false, "", ""
}

func removeID(order []string, id string) []string {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
