package behavior

import (
	"fmt"

	"github.com/bramble-labs/bramble/core"
)

// Wait stays RUNNING for a configured number of ticks and then succeeds.
// Reset restarts the count.
type Wait struct {
	core.Base
	ticks   int
	elapsed int
}

// NewWait creates a wait leaf lasting ticks ticks.
func NewWait(name string, ticks int) *Wait {
	if ticks < 0 {
		ticks = 0
	}
	return &Wait{Base: core.NewBase(TypeWait, name), ticks: ticks}
}

// Ticks returns the configured duration in ticks.
func (n *Wait) Ticks() int { return n.ticks }

// Tick advances the wait.
func (n *Wait) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)

	if n.elapsed < n.ticks {
		n.elapsed++
		return n.Conclude(t, n, core.StatusRunning, fmt.Sprintf("waited %d/%d ticks", n.elapsed, n.ticks))
	}
	return n.Conclude(t, n, core.StatusSuccess, "")
}

// Reset restarts the wait along with the node state.
func (n *Wait) Reset() {
	n.elapsed = 0
	n.Base.Reset()
}

var _ core.Node = (*Wait)(nil)
