package behavior

import (
	"fmt"

	"github.com/bramble-labs/bramble/core"
)

// Repeat runs its child to SUCCESS the configured number of times,
// resetting the child between iterations. It reports RUNNING while
// iterations remain, SUCCESS once all have completed, and FAILURE as soon
// as the child fails.
type Repeat struct {
	decorator
	times int
	done  int
}

// NewRepeat creates a repeat decorator that completes child times times.
func NewRepeat(name string, times int, child core.Node) *Repeat {
	if times < 1 {
		times = 1
	}
	return &Repeat{decorator: newDecorator(TypeRepeat, name, child), times: times}
}

// Times returns the configured iteration count.
func (n *Repeat) Times() int { return n.times }

// Tick advances the current iteration.
func (n *Repeat) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)

	switch status := n.child.Tick(t); status {
	case core.StatusSuccess:
		n.done++
		if n.done >= n.times {
			n.done = 0
			return n.Conclude(t, n, core.StatusSuccess, fmt.Sprintf("completed %d iterations", n.times))
		}
		n.child.Reset()
		return n.Conclude(t, n, core.StatusRunning, fmt.Sprintf("iteration %d/%d", n.done, n.times))
	case core.StatusFailure:
		n.done = 0
		return n.Conclude(t, n, core.StatusFailure, n.child.Feedback())
	default:
		return n.Conclude(t, n, core.StatusRunning, "")
	}
}

// Reset clears iteration progress along with the child.
func (n *Repeat) Reset() {
	n.done = 0
	n.decorator.Reset()
}

var _ core.Decorator = (*Repeat)(nil)
