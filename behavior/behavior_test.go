package behavior

import (
	"context"
	"testing"

	"github.com/bramble-labs/bramble/blackboard"
	"github.com/bramble-labs/bramble/core"
)

// probe is a scripted leaf for composite and decorator tests. It returns
// the scripted statuses in order, repeating the last one, and counts how
// often it was invoked.
type probe struct {
	core.Base
	script []core.Status
	ticks  int
}

func newProbe(name string, script ...core.Status) *probe {
	if len(script) == 0 {
		script = []core.Status{core.StatusSuccess}
	}
	return &probe{Base: core.NewBase("probe", name), script: script}
}

func (p *probe) Tick(t *core.Tick) core.Status {
	p.Begin(t, p)
	idx := p.ticks
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.ticks++
	return p.Conclude(t, p, p.script[idx], "")
}

func newTestTick(t *testing.T) *core.Tick {
	t.Helper()
	return core.NewTick(context.Background(), blackboard.New())
}

func tickN(t *testing.T, n core.Node, count int) core.Status {
	t.Helper()
	var status core.Status
	for i := 0; i < count; i++ {
		status = n.Tick(newTestTick(t))
	}
	return status
}
