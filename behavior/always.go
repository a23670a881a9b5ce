package behavior

import (
	"github.com/bramble-labs/bramble/core"
)

// Always concludes with a fixed terminal status on every tick.
type Always struct {
	core.Base
	result core.Status
}

// NewAlways creates a leaf that always reports result. Anything other
// than FAILURE is treated as SUCCESS.
func NewAlways(name string, result core.Status) *Always {
	if result != core.StatusFailure {
		result = core.StatusSuccess
	}
	return &Always{Base: core.NewBase(TypeAlways, name), result: result}
}

// Result returns the configured status.
func (n *Always) Result() core.Status { return n.result }

// Tick reports the configured status.
func (n *Always) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)
	return n.Conclude(t, n, n.result, "")
}

var _ core.Node = (*Always)(nil)
