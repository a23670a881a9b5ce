package behavior

import (
	"github.com/bramble-labs/bramble/core"
)

// Inverter flips its child's terminal status: SUCCESS becomes FAILURE and
// FAILURE becomes SUCCESS. RUNNING passes through unchanged.
type Inverter struct {
	decorator
}

// NewInverter creates an inverter around child.
func NewInverter(name string, child core.Node) *Inverter {
	return &Inverter{decorator: newDecorator(TypeInverter, name, child)}
}

// Tick evaluates the child and inverts terminal results.
func (n *Inverter) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)
	status := n.child.Tick(t)
	switch status {
	case core.StatusSuccess:
		status = core.StatusFailure
	case core.StatusFailure:
		status = core.StatusSuccess
	}
	return n.Conclude(t, n, status, n.child.Feedback())
}

var _ core.Decorator = (*Inverter)(nil)
