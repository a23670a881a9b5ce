package behavior

import (
	"fmt"

	"github.com/bramble-labs/bramble/core"
)

// Timeout bounds how many consecutive ticks its child may stay RUNNING.
// When the budget is exhausted the child is reset and the timeout reports
// FAILURE. Budgets count ticks rather than wall time so replays of the
// same definition and updates stay deterministic.
type Timeout struct {
	decorator
	budget int
	used   int
}

// NewTimeout creates a timeout decorator with a budget of ticks.
func NewTimeout(name string, ticks int, child core.Node) *Timeout {
	if ticks < 1 {
		ticks = 1
	}
	return &Timeout{decorator: newDecorator(TypeTimeout, name, child), budget: ticks}
}

// Budget returns the configured tick budget.
func (n *Timeout) Budget() int { return n.budget }

// Tick evaluates the child and enforces the budget.
func (n *Timeout) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)

	status := n.child.Tick(t)
	if status == core.StatusRunning {
		n.used++
		if n.used >= n.budget {
			n.child.Reset()
			n.used = 0
			return n.Conclude(t, n, core.StatusFailure, fmt.Sprintf("exceeded %d-tick budget", n.budget))
		}
		return n.Conclude(t, n, core.StatusRunning, fmt.Sprintf("tick %d/%d", n.used, n.budget))
	}

	n.used = 0
	return n.Conclude(t, n, status, n.child.Feedback())
}

// Reset clears budget progress along with the child.
func (n *Timeout) Reset() {
	n.used = 0
	n.decorator.Reset()
}

var _ core.Decorator = (*Timeout)(nil)
