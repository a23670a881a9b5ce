package behavior

import (
	"github.com/bramble-labs/bramble/core"
)

// Selector ticks its children in priority order. The first child that
// returns SUCCESS or RUNNING halts the pass and becomes the selector's
// status; the selector fails only when every child fails.
//
// Without memory every tick re-evaluates from child 0, so a higher
// priority child that recovers preempts a lower one; the preempted
// subtree is reset. With memory a tick resumes at the child that was
// RUNNING last tick, skipping the already-failed prefix.
type Selector struct {
	composite
}

// NewSelector creates a selector over children.
func NewSelector(name string, memory bool, children ...core.Node) *Selector {
	return &Selector{composite: newComposite(TypeSelector, name, memory, children)}
}

// Tick evaluates children until one succeeds or runs.
func (s *Selector) Tick(t *core.Tick) core.Status {
	s.Begin(t, s)

	start := 0
	if s.memory && s.current >= 0 && s.current < len(s.children) &&
		s.children[s.current].Status() == core.StatusRunning {
		start = s.current
	}

	for i := start; i < len(s.children); i++ {
		child := s.children[i]
		switch status := child.Tick(t); status {
		case core.StatusRunning, core.StatusSuccess:
			s.current = i
			s.invalidateFrom(i + 1)
			return s.Conclude(t, s, status, child.Feedback())
		}
	}

	s.current = -1
	return s.Conclude(t, s, core.StatusFailure, "")
}

var _ core.Composite = (*Selector)(nil)
