package behavior

import (
	"github.com/bramble-labs/bramble/core"
)

// ForceSuccess reports SUCCESS whenever its child concludes, regardless of
// how the child concluded. RUNNING passes through.
type ForceSuccess struct {
	decorator
}

// NewForceSuccess creates a force_success decorator around child.
func NewForceSuccess(name string, child core.Node) *ForceSuccess {
	return &ForceSuccess{decorator: newDecorator(TypeForceSuccess, name, child)}
}

// Tick evaluates the child and forces terminal results to SUCCESS.
func (n *ForceSuccess) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)
	status := n.child.Tick(t)
	if status.Terminal() {
		status = core.StatusSuccess
	}
	return n.Conclude(t, n, status, n.child.Feedback())
}

// ForceFailure reports FAILURE whenever its child concludes, regardless of
// how the child concluded. RUNNING passes through.
type ForceFailure struct {
	decorator
}

// NewForceFailure creates a force_failure decorator around child.
func NewForceFailure(name string, child core.Node) *ForceFailure {
	return &ForceFailure{decorator: newDecorator(TypeForceFailure, name, child)}
}

// Tick evaluates the child and forces terminal results to FAILURE.
func (n *ForceFailure) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)
	status := n.child.Tick(t)
	if status.Terminal() {
		status = core.StatusFailure
	}
	return n.Conclude(t, n, status, n.child.Feedback())
}

var (
	_ core.Decorator = (*ForceSuccess)(nil)
	_ core.Decorator = (*ForceFailure)(nil)
)
