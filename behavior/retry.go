package behavior

import (
	"fmt"

	"github.com/bramble-labs/bramble/core"
)

// Retry re-runs its child after a FAILURE, up to the configured number of
// attempts, resetting the child between attempts. SUCCESS passes through
// immediately; FAILURE surfaces only when the attempt budget is spent.
type Retry struct {
	decorator
	attempts int
	failed   int
}

// NewRetry creates a retry decorator allowing up to attempts failures.
func NewRetry(name string, attempts int, child core.Node) *Retry {
	if attempts < 1 {
		attempts = 1
	}
	return &Retry{decorator: newDecorator(TypeRetry, name, child), attempts: attempts}
}

// Attempts returns the configured attempt budget.
func (n *Retry) Attempts() int { return n.attempts }

// Tick advances the current attempt.
func (n *Retry) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)

	switch status := n.child.Tick(t); status {
	case core.StatusFailure:
		n.failed++
		if n.failed >= n.attempts {
			n.failed = 0
			return n.Conclude(t, n, core.StatusFailure, fmt.Sprintf("gave up after %d attempts", n.attempts))
		}
		n.child.Reset()
		return n.Conclude(t, n, core.StatusRunning, fmt.Sprintf("attempt %d/%d failed", n.failed, n.attempts))
	case core.StatusSuccess:
		n.failed = 0
		return n.Conclude(t, n, core.StatusSuccess, n.child.Feedback())
	default:
		return n.Conclude(t, n, core.StatusRunning, "")
	}
}

// Reset clears attempt progress along with the child.
func (n *Retry) Reset() {
	n.failed = 0
	n.decorator.Reset()
}

var _ core.Decorator = (*Retry)(nil)
