package behavior

import (
	"github.com/bramble-labs/bramble/core"
)

// Sequence ticks its children in order. The first child that returns
// RUNNING or FAILURE halts the pass and becomes the sequence's status;
// the sequence succeeds only when every child succeeds.
//
// With memory, a tick resumes at the child that was RUNNING last tick and
// earlier children are not re-invoked. Without memory every tick restarts
// at child 0, re-evaluating the full prefix.
type Sequence struct {
	composite
}

// NewSequence creates a sequence over children.
func NewSequence(name string, memory bool, children ...core.Node) *Sequence {
	return &Sequence{composite: newComposite(TypeSequence, name, memory, children)}
}

// Tick evaluates children until one fails or runs.
func (s *Sequence) Tick(t *core.Tick) core.Status {
	s.Begin(t, s)

	start := 0
	if s.memory && s.current >= 0 && s.current < len(s.children) &&
		s.children[s.current].Status() == core.StatusRunning {
		start = s.current
	}

	for i := start; i < len(s.children); i++ {
		child := s.children[i]
		switch status := child.Tick(t); status {
		case core.StatusRunning, core.StatusFailure:
			s.current = i
			s.invalidateFrom(i + 1)
			return s.Conclude(t, s, status, child.Feedback())
		}
	}

	s.current = -1
	return s.Conclude(t, s, core.StatusSuccess, "")
}

var _ core.Composite = (*Sequence)(nil)
