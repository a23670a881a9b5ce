package behavior

import (
	"github.com/bramble-labs/bramble/core"
)

// Idle stays RUNNING forever. Useful as a placeholder during tree design
// and as an anchor for stepping through surrounding nodes in a debugger.
type Idle struct {
	core.Base
}

// NewIdle creates an idle leaf.
func NewIdle(name string) *Idle {
	return &Idle{Base: core.NewBase(TypeIdle, name)}
}

// Tick reports RUNNING.
func (n *Idle) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)
	return n.Conclude(t, n, core.StatusRunning, "")
}

var _ core.Node = (*Idle)(nil)
